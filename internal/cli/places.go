package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/listing"
	"github.com/roach88/contentsync/internal/resource"
)

// defaultLimit bounds search and ranking results.
const defaultLimit = 20

// NewPlacesCommand creates the places command group.
func NewPlacesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "places",
		Short: "Manage visited places",
	}

	cmd.AddCommand(newPlacesUpsertCommand(rootOpts))
	cmd.AddCommand(newSearchCommand(rootOpts, "Search places by url or title", func(e *env) searchFunc {
		return e.content.SearchPlaces
	}))

	return cmd
}

// NewMediaCommand creates the media command group.
func NewMediaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Browse media entries",
	}

	cmd.AddCommand(newSearchCommand(rootOpts, "Search media by url or title", func(e *env) searchFunc {
		return e.content.SearchMedia
	}))

	return cmd
}

func newPlacesUpsertCommand(opts *RootOptions) *cobra.Command {
	var title, icon string

	cmd := &cobra.Command{
		Use:   "upsert <url>",
		Short: "Create or update a place",
		Long: `Create or update the place for url.

The write is queued and coalesced with other pending writes for the same
url, then flushed before the command exits. The icon is refetched only when
it differs from the stored one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				url := content.CleanURL(args[0])
				if !e.content.UpsertPlace(url, title, icon) {
					return e.invalid("invalid place url " + args[0])
				}
				if err := e.content.Flush(e.ctx); err != nil {
					return e.fail(err, "failed to store place")
				}

				container, err := e.content.Registry().Ensure(e.ctx, content.ContainerPlaces)
				if err != nil {
					return e.fail(err, "failed to store place")
				}
				r, err := e.content.ChildByName(e.ctx, container, url, resource.DefaultVariant)
				if err != nil {
					return e.fail(err, "failed to store place")
				}
				return e.out.Success(newResourceView(r))
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "page title")
	cmd.Flags().StringVar(&icon, "icon", "", "icon url")

	return cmd
}

type searchFunc func(ctx context.Context, query string, maxCount int, fn func(*listing.Entry) bool) error

func newSearchCommand(opts *RootOptions, short string, pick func(e *env) searchFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query string
			if len(args) == 1 {
				query = args[0]
			}
			return withEnv(cmd, opts, func(e *env) error {
				search := pick(e)
				list, err := collect(func(fn func(*listing.Entry) bool) error {
					return search(e.ctx, query, limit, fn)
				})
				if err != nil {
					return e.fail(err, "search failed")
				}
				return e.out.Success(list)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "maximum number of results")

	return cmd
}
