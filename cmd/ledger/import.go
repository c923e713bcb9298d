package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ledger/internal/core"
)

type importOptions struct {
	account        string
	delimiter      string
	dryRun         bool
	allowDuplicate bool
	jsonOut        bool
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import one statement file as a single atomic batch",
		Long: `Import one statement file as a single atomic batch.

With --dry-run the file is validated and previewed without opening the
database, so DATABASE_URL may be left unset.`,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.delimiter != "" && utf8.RuneCountInString(opts.delimiter) != 1 {
				return fmt.Errorf("--delimiter must be a single character, got %q", opts.delimiter)
			}
			if !opts.dryRun && opts.account == "" {
				return fmt.Errorf("--account is required unless --dry-run is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runImport(ctx, a, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.account, "account", "a", "", "Account the transactions belong to")
	cmd.Flags().StringVarP(&opts.delimiter, "delimiter", "d", "", "Field delimiter (default IMPORT_DELIMITER)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate and print the normalized rows without writing")
	cmd.Flags().BoolVar(&opts.allowDuplicate, "allow-duplicate", false, "Import even if identical content was imported before")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func runImport(ctx context.Context, a *app, path string, opts importOptions, out io.Writer) error {
	var delim rune
	if opts.delimiter != "" {
		delim, _ = utf8.DecodeRuneInString(opts.delimiter)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Import.Timeout)
	defer cancel()

	if opts.dryRun {
		importer, err := a.newImporter(nil, delim)
		if err != nil {
			return err
		}
		content, err := importer.ReadFile(path)
		if err != nil {
			return err
		}
		preview, err := importer.Preview(ctx, content)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return writeJSON(out, preview)
		}
		return printPreview(out, filepath.Base(path), preview)
	}

	ledger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	defer ledger.Close()

	importer, err := a.newImporter(ledger, delim)
	if err != nil {
		return err
	}
	content, err := importer.ReadFile(path)
	if err != nil {
		return err
	}

	if !opts.allowDuplicate {
		if err := core.CheckDuplicate(ctx, ledger, content); err != nil {
			return err
		}
	}

	result, err := importer.Import(ctx, filepath.Base(path), content, opts.account)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "imported %d transactions from %s into %s\n", result.Rows, result.SourceName, result.AccountID)
	fmt.Fprintf(out, "import id: %s\nsha256:    %s\n", result.ImportID, result.SourceHash)
	return nil
}

func printPreview(out io.Writer, name string, p core.PreviewResult) error {
	fmt.Fprintf(out, "%s: %d rows would be imported (sha256 %s)\n\n", name, len(p.Transactions), p.SourceHash)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDATE\tDESCRIPTION\tDEBIT\tCREDIT")
	for _, t := range p.Transactions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.LineNumber, t.TxnDate, t.Description, t.Debit, t.Credit)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
