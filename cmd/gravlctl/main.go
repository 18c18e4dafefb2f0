// Command gravlctl imports datasets into the record store and runs the
// dashboard analytics from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gravl/internal/backend"
	"gravl/internal/cli"
	"gravl/internal/config"
	"gravl/internal/log"
	"gravl/internal/records"
	"gravl/internal/sheets"
)

// app carries what every subcommand needs. Tests pre-populate it; the
// binary fills it in from the environment.
type app struct {
	cfg    *config.Config
	result *backend.BackendResult
	logger *log.Logger
	sheets sheets.RangeReader
	pretty bool
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.Execute()
	if a.result != nil {
		_ = a.result.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gravlctl",
		Short: "Import and query GRAVL runs and Angel5000 companies",
		Long: `gravlctl works against the record store selected by DATA_BACKEND.

Commands:
  import   - Load runs or companies from a JSON/CSV file or a Google Sheet
  stats    - Print the dashboard summary of a table
  top      - Rank groups of runs by count, pass rate or a summed field
  filter   - Select records with field criteria and free-text search`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&a.pretty, "pretty", true, "indent JSON output")

	root.AddCommand(
		newImportCmd(a),
		newStatsCmd(a),
		newTopCmd(a),
		newFilterCmd(a),
	)
	return root
}

// init loads configuration and opens the backend unless they were injected.
func (a *app) init(ctx context.Context) error {
	if a.cfg == nil {
		cli.LoadEnvFile()
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration: %w", err)
		}
		a.cfg = cfg
	}
	if a.logger == nil {
		a.logger = log.New(log.Config{
			Level:     log.ParseLevel(a.cfg.LogLevel),
			Component: log.ComponentCLI,
			Format:    a.cfg.LogFormat,
			Output:    os.Stderr,
		})
	}
	if a.result == nil {
		bcfg, err := backend.FromAppConfig(a.cfg)
		if err != nil {
			return err
		}
		result, err := backend.NewFactory(a.logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
		if err != nil {
			return err
		}
		a.result = result
	}
	return nil
}

func (a *app) print(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if a.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// tableArg maps the positional table argument to a store table.
func tableArg(arg string) (string, error) {
	switch strings.ToLower(arg) {
	case "runs":
		return records.TableRuns, nil
	case "companies", "angel5000", records.TableCompanies:
		return records.TableCompanies, nil
	default:
		return "", fmt.Errorf("unknown table %q (want runs or companies)", arg)
	}
}
