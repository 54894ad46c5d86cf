package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shineum/enjinmel-relay/internal/storage"
)

type logFilterFlags struct {
	status  string
	search  string
	from    string
	to      string
	page    int
	perPage int
}

func (f *logFilterFlags) register(cmd *cobra.Command, paged bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.status, "status", "", "only sent or failed entries")
	flags.StringVar(&f.search, "search", "", "match recipients or subject")
	flags.StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	flags.StringVar(&f.to, "to", "", "last day, YYYY-MM-DD")
	if paged {
		flags.IntVar(&f.page, "page", 1, "page number")
		flags.IntVar(&f.perPage, "per-page", storage.DefaultPerPage, "entries per page (max 100)")
	}
}

func (f *logFilterFlags) filter() storage.Filter {
	return storage.Filter{
		Search:   f.search,
		Status:   storage.Status(f.status),
		DateFrom: f.from,
		DateTo:   f.to,
		Page:     f.page,
		PerPage:  f.perPage,
	}.Normalized()
}

func newLogsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the send log",
	}
	cmd.AddCommand(newLogsListCommand(opts), newLogsExportCommand(opts))
	return cmd
}

func newLogsListCommand(opts *options) *cobra.Command {
	f := &logFilterFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(cmd.Context(), opts.cfg.StoreConfig())
			if err != nil {
				return err
			}
			defer store.Close()

			page, err := store.List(cmd.Context(), f.filter())
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), page)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newLogsExportCommand(opts *options) *cobra.Command {
	f := &logFilterFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching log entries as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.Open(cmd.Context(), opts.cfg.StoreConfig())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Export(cmd.Context(), f.filter())
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				return storage.WriteCSV(cmd.OutOrStdout(), entries)
			}
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := storage.WriteCSV(file, entries); err != nil {
				file.Close()
				return err
			}
			return file.Close()
		},
	}
	f.register(cmd, false)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func printPage(w io.Writer, page *storage.Page) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIMESTAMP\tSTATUS\tTO\tSUBJECT\tERROR")
	for _, e := range page.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Timestamp.UTC().Format(storage.CSVTimeLayout),
			e.Status,
			e.ToEmail,
			e.Subject,
			e.ErrorMessage,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d of %d (%d entries)\n", page.Page, page.TotalPages(), page.Total)
	return err
}
