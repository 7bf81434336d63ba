package cli

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/contentsync/internal/actions"
)

var positionPattern = regexp.MustCompile(`^\d+,\d+$`)

// ActionsAddOptions holds flags for the actions add command.
type ActionsAddOptions struct {
	*RootOptions
	ID       string
	Title    string
	URL      string
	App      string
	Position string
	Icon     string
}

// NewActionsCommand creates the actions command group.
func NewActionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Manage homescreen actions",
		Long: `Manage the homescreen actions stored in the "homescreen" container.

The first command run against an empty store seeds the bundled defaults.`,
	}

	cmd.AddCommand(newActionsListCommand(rootOpts))
	cmd.AddCommand(newActionsAddCommand(rootOpts))
	cmd.AddCommand(newActionsRemoveCommand(rootOpts))
	cmd.AddCommand(newActionsMoveCommand(rootOpts))
	cmd.AddCommand(newActionsSlotsCommand(rootOpts))

	return cmd
}

func newActionsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actions in grid order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				store, err := e.actions()
				if err != nil {
					return err
				}
				list := actionList{}
				for _, a := range store.List() {
					list = append(list, newActionView(a))
				}
				return e.out.Success(list)
			})
		},
	}
}

func newActionsAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActionsAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an action",
		Long: `Add an action to the homescreen.

Without --position the action takes the first free grid cell. --icon
accepts a local path or an http(s) url.

Example:
  contentsync actions add --title Notes --url http://notes.localhost/index.html
  contentsync actions add --id notes --title Notes --url ... --icon ./notes.png --position 0,1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts.RootOptions, func(e *env) error {
				return addAction(e, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "action id (default: random uuid)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title shown under the icon")
	cmd.Flags().StringVar(&opts.URL, "url", "", "url opened by the action (required)")
	cmd.Flags().StringVar(&opts.App, "app", "", "manifest url of the app")
	cmd.Flags().StringVar(&opts.Position, "position", "", "grid cell as x,y")
	cmd.Flags().StringVar(&opts.Icon, "icon", "", "icon path or url")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func addAction(e *env, opts *ActionsAddOptions) error {
	if opts.Position != "" && !positionPattern.MatchString(opts.Position) {
		return e.invalid("position must be x,y")
	}

	store, err := e.actions()
	if err != nil {
		return err
	}

	a := actions.Action{
		ID:       opts.ID,
		Title:    opts.Title,
		URL:      opts.URL,
		App:      opts.App,
		Position: opts.Position,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Position == "" {
		slots := store.EmptySlots(e.cfg.Homescreen.GridWidth)
		a.Position = slots[0]
	}
	if opts.Icon != "" {
		icon, err := e.content.Fetcher().Fetch(e.ctx, opts.Icon)
		if err != nil {
			_ = e.out.Error(ErrCodeFetchFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to read icon", err)
		}
		a.Icon = &icon
	}

	if err := store.Add(e.ctx, a); err != nil {
		return e.fail(err, "failed to add action")
	}
	added, _ := store.Get(a.ID)
	e.out.VerboseLog("added action %s at %s", added.ID, added.Position)
	return e.out.Success(newActionView(added))
}

func newActionsRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				store, err := e.actions()
				if err != nil {
					return err
				}
				if err := store.Remove(e.ctx, args[0]); err != nil {
					return e.fail(err, "failed to remove action")
				}
				return e.out.Success(message{Message: "removed " + args[0], ID: args[0]})
			})
		},
	}
}

func newActionsMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <x,y>",
		Short: "Move an action to another grid cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				id, position := args[0], args[1]
				if !positionPattern.MatchString(position) {
					return e.invalid("position must be x,y")
				}
				store, err := e.actions()
				if err != nil {
					return err
				}
				if err := store.UpdatePosition(e.ctx, id, position); err != nil {
					return e.fail(err, "failed to move action")
				}
				moved, _ := store.Get(id)
				return e.out.Success(newActionView(moved))
			})
		},
	}
}

func newActionsSlotsCommand(opts *RootOptions) *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free grid cells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				w := width
				if w <= 0 {
					w = e.cfg.Homescreen.GridWidth
				}
				store, err := e.actions()
				if err != nil {
					return err
				}
				return e.out.Success(slotList{Width: w, Slots: store.EmptySlots(w)})
			})
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "grid width in cells (default: homescreen.grid_width)")

	return cmd
}
