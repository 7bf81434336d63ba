package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/contentsync/internal/content"
)

// NewPluginsCommand creates the plugins command group.
func NewPluginsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Manage wasm plugins",
	}

	cmd.AddCommand(newPluginsListCommand(rootOpts))
	cmd.AddCommand(newPluginsAddCommand(rootOpts))

	return cmd
}

func newPluginsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				m, err := e.plugins()
				if err != nil {
					return err
				}
				defer m.Close(e.ctx)
				return e.out.Success(resourcesOf(m.List()))
			})
		},
	}
}

func newPluginsAddCommand(opts *RootOptions) *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Install a wasm plugin",
		Long: `Download the wasm binary at url (a local path or http(s) url) and store
it in the "wasm-plugins" container. The manifest is read from --manifest
and defaults to {"url": <url>}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				url := args[0]
				manifest := map[string]any{"url": url}
				if manifestPath != "" {
					data, err := os.ReadFile(manifestPath)
					if err != nil {
						return e.invalid(fmt.Sprintf("read manifest: %v", err))
					}
					manifest = nil
					if err := json.Unmarshal(data, &manifest); err != nil {
						return e.invalid(fmt.Sprintf("parse manifest %s: %v", manifestPath, err))
					}
				}

				m, err := e.plugins()
				if err != nil {
					return err
				}
				defer m.Close(e.ctx)

				r, err := m.Add(e.ctx, manifest, url)
				if err != nil {
					return e.fail(err, "failed to add plugin")
				}
				return e.out.Success(newResourceView(r))
			})
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "path to the plugin manifest (JSON)")

	return cmd
}

func resourcesOf(list []*content.Resource) resourceList {
	out := resourceList{}
	for _, r := range list {
		out = append(out, newResourceView(r))
	}
	return out
}
