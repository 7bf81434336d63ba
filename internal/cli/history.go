package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/listing"
	"github.com/roach88/contentsync/internal/service"
)

// NewTopCommand creates the top command.
func NewTopCommand(opts *RootOptions) *cobra.Command {
	return newRankingCommand(opts, "top", "List entries by frecency", func(e *env) rankFunc {
		return e.content.TopByFrecency
	})
}

// NewRecentCommand creates the recent command.
func NewRecentCommand(opts *RootOptions) *cobra.Command {
	return newRankingCommand(opts, "recent", "List recently modified entries", func(e *env) rankFunc {
		return e.content.LastModified
	})
}

type rankFunc func(ctx context.Context, maxCount int, fn func(*listing.Entry) bool) error

func newRankingCommand(opts *RootOptions, use, short string, pick func(e *env) rankFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				rank := pick(e)
				list, err := collect(func(fn func(*listing.Entry) bool) error {
					return rank(e.ctx, limit, fn)
				})
				if err != nil {
					return e.fail(err, use+" failed")
				}
				return e.out.Success(list)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "maximum number of results")

	return cmd
}

// NewVisitCommand creates the visit command.
func NewVisitCommand(opts *RootOptions) *cobra.Command {
	var media, high bool

	cmd := &cobra.Command{
		Use:   "visit <url>",
		Short: "Record a visit to a place or media entry",
		Long: `Record a visit to the place (or, with --media, the media entry) for url.

Visits raise the entry's frecency score; --high records a high priority
visit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(e *env) error {
				url := content.CleanURL(args[0])
				if !content.ValidURL(url) {
					return e.invalid("invalid url " + args[0])
				}
				priority := service.VisitNormal
				if high {
					priority = service.VisitHigh
				}

				var err error
				if media {
					err = e.content.VisitMedia(e.ctx, url, priority)
				} else {
					err = e.content.VisitPlace(e.ctx, url, priority)
				}
				if err != nil {
					return e.fail(err, "failed to record visit")
				}
				return e.out.Success(message{Message: "visited " + url})
			})
		},
	}

	cmd.Flags().BoolVar(&media, "media", false, "visit a media entry instead of a place")
	cmd.Flags().BoolVar(&high, "high", false, "record a high priority visit")

	return cmd
}
