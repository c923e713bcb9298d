package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ledger/internal/core"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger schema if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := ledger.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		hash    string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past imports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ledger, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			var imports []core.ImportRecord
			if hash != "" {
				imports, err = ledger.FindImportsByHash(ctx, hash)
			} else {
				imports, err = ledger.ListImports(ctx, limit)
			}
			if err != nil {
				return err
			}

			if jsonOut {
				if imports == nil {
					imports = []core.ImportRecord{}
				}
				return writeJSON(cmd.OutOrStdout(), imports)
			}
			return printImports(cmd.OutOrStdout(), imports)
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "Only imports whose content has this SHA-256")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum imports to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show IMPORT_ID",
		Short: "Show one import and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid import id %q", args[0])
			}

			ctx := cmd.Context()
			ledger, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			rec, err := ledger.GetImport(ctx, id)
			if err != nil {
				return fmt.Errorf("import %s: %w", id, err)
			}
			txns, err := ledger.ListTransactions(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := printImports(out, []core.ImportRecord{rec}); err != nil {
				return err
			}
			fmt.Fprintln(out)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LINE\tDATE\tDESCRIPTION\tDEBIT\tCREDIT\tRAW")
			for _, t := range txns {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					t.LineNumber, t.TxnDate, t.Description, t.Debit, t.Credit, t.RawAmount)
			}
			return tw.Flush()
		},
	}
}

func printImports(out io.Writer, imports []core.ImportRecord) error {
	if len(imports) == 0 {
		_, err := fmt.Fprintln(out, "no imports")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tACCOUNT\tROWS\tSHA256")
	for _, r := range imports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.12s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.SourceName, r.AccountID, r.RowCount, r.SourceHash)
	}
	return tw.Flush()
}
