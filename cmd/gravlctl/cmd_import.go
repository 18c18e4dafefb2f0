package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gravl/internal/importer"
	"gravl/internal/log"
	"gravl/internal/sheets"
	"gravl/internal/sheets/google"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		file   string
		format string
		sheet  string
	)
	cmd := &cobra.Command{
		Use:   "import <runs|companies>",
		Short: "Import records from a JSON or CSV file, or a Google Sheets range",
		Long: `Import records from a JSON array, a CSV file with a header row, or a
Google Sheets range whose first row is the header.

The file format is taken from --format, or from the file extension when the
flag is omitted. --sheet reads GOOGLE_SPREADSHEET_ID with the service account
in GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE. Companies are
upserted on company_id; runs are appended.`,
		Example: `  gravlctl import runs --file data/runs.json
  gravlctl import companies --file angel5000_index_seed.csv
  gravlctl import companies --sheet "Seed!A1:P"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := tableArg(args[0])
			if err != nil {
				return err
			}
			opts := importer.Options{
				BatchSize:   a.cfg.ImportBatchSize,
				Concurrency: a.cfg.ImportConcurrency,
				Backend:     a.cfg.DataBackend,
				Logger:      a.logger.WithComponent(log.ComponentImporter),
			}
			if a.result.Notifier != nil {
				opts.Notifier = a.result.Notifier
			}
			im := importer.New(a.result.Backend, a.result.Backend, opts)

			var (
				summary importer.Summary
				source  = file
			)
			if sheet != "" {
				source = sheet
				src, serr := a.sheetReader(cmd.Context())
				if serr != nil {
					return serr
				}
				summary, err = im.ImportSheet(cmd.Context(), table, src, sheet)
			} else {
				f, ferr := importer.ParseFormat(format, file)
				if ferr != nil {
					return ferr
				}
				summary, err = im.ImportFile(cmd.Context(), table, file, f)
			}
			if perr := a.print(cmd.OutOrStdout(), summary); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("import %s: %w", source, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path of the file to import")
	cmd.Flags().StringVar(&format, "format", "", "json or csv (default: from the file extension)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "A1 range of a Google Sheets tab, e.g. Seed!A1:P")
	cmd.MarkFlagsMutuallyExclusive("file", "sheet")
	cmd.MarkFlagsOneRequired("file", "sheet")
	return cmd
}

// sheetReader returns the injected range reader or dials Google Sheets.
func (a *app) sheetReader(ctx context.Context) (sheets.RangeReader, error) {
	if a.sheets != nil {
		return a.sheets, nil
	}
	return google.New(ctx, google.Config{
		SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
		CredentialsJSON: a.cfg.GoogleCredentialsJSON,
		CredentialsFile: a.cfg.GoogleCredentialsFile,
	}, a.logger.WithComponent(log.ComponentSheets))
}
