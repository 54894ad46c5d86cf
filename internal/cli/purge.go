package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shineum/enjinmel-relay/internal/maillog"
	"github.com/shineum/enjinmel-relay/internal/storage"
)

func newPurgeCommand(opts *options) *cobra.Command {
	var days, maxRows int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Apply the log retention policy once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			policy := opts.cfg.RetentionPolicy()
			if cmd.Flags().Changed("days") {
				policy.Days = days
			}
			if cmd.Flags().Changed("max-rows") {
				policy.MaxRows = maxRows
			}

			store, err := storage.Open(ctx, opts.cfg.StoreConfig())
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := maillog.Purge(ctx, store, policy, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d trimmed=%d\n", res.Expired, res.Trimmed)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "delete entries older than N days (0 disables)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "keep at most N newest entries (0 disables)")
	return cmd
}
