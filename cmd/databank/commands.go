package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/server"
	"github.com/madison88admin/supplychain-app-sub002/internal/tabular"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cmd.SetContext(ctx)

			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			opts := []server.Option{
				server.WithHealth(a.db),
				server.WithMetrics(a.metrics),
				server.WithLogger(a.log.With().Str("subsystem", "http").Logger()),
			}
			if a.exporter != nil {
				opts = append(opts, server.WithExports(a.exporter))
			} else {
				a.log.Info("no object store configured, exports disabled")
			}

			return server.New(a.cfg.Server, a.svc, opts...).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}

func newTablesCmd(g *globals) *cobra.Command {
	var describe bool

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if describe {
				all, err := a.svc.DescribeAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), all)
			}

			for _, t := range a.svc.ListTables(cmd.Context()) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&describe, "describe", false, "Print every table's columns as JSON")
	return cmd
}

func newQueryCmd(g *globals) *cobra.Command {
	var (
		page   int
		limit  int
		search string
	)

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Print one page of a table as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.Fetch(cmd.Context(), tabular.Query{
				Table:  args[0],
				Page:   page,
				Limit:  limit,
				Search: search,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&limit, "limit", tabular.DefaultLimit, "Rows per page")
	addSearchFlag(cmd.Flags(), &search)
	return cmd
}

// readRecords accepts either a JSON array of records or {"records": [...]}.
func readRecords(path string) ([]map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "could not read "+path, err)
	}
	b = bytes.TrimSpace(b)

	var records []map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if len(b) > 0 && b[0] == '[' {
		err = dec.Decode(&records)
	} else {
		var body struct {
			Records []map[string]any `json:"records"`
		}
		err = dec.Decode(&body)
		records = body.Records
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "could not parse "+path, err)
	}
	return records, nil
}

func newUploadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <table> <file.json>",
		Short: "Insert the records in a JSON file into a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readRecords(args[1])
			if err != nil {
				return err
			}

			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.svc.Upload(cmd.Context(), args[0], records)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "inserted %d records into %s\n", n, args[0])
			return nil
		},
	}
}

func newExportCmd(g *globals) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Export matching rows to the object store as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.exporter == nil {
				return errs.New(errs.ErrKindInvalidInput, "no object store configured, set filestore.endpoint")
			}
			res, err := a.exporter.Export(cmd.Context(), args[0], search)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	addSearchFlag(cmd.Flags(), &search)
	return cmd
}

func addSearchFlag(fs *pflag.FlagSet, dst *string) {
	fs.StringVarP(dst, "search", "s", "", "Whitespace separated search terms, all of which must match")
}
