package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gravl/internal/analytics"
	"gravl/internal/core"
	"gravl/internal/records"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <runs|companies>",
		Short: "Print the dashboard summary of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := tableArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if table == records.TableCompanies {
				companies, err := a.result.Backend.ListCompanies(ctx)
				if err != nil {
					return err
				}
				return a.printCompanyStats(cmd, companies)
			}
			runs, err := a.result.Backend.ListRuns(ctx)
			if err != nil {
				return err
			}
			return a.printRunStats(cmd, runs)
		},
	}
}

func (a *app) printRunStats(cmd *cobra.Command, runs []core.Run) error {
	overview, err := analytics.RunOverview(runs)
	if err != nil {
		return err
	}
	kits, err := analytics.KitReliability(runs)
	if err != nil {
		return err
	}
	ops, err := analytics.Operations(runs)
	if err != nil {
		return err
	}
	gov, err := analytics.Governance(runs)
	if err != nil {
		return err
	}
	lic, err := analytics.Licensing(runs)
	if err != nil {
		return err
	}
	return a.print(cmd.OutOrStdout(), map[string]any{
		"overview":   overview,
		"kits":       kits,
		"operations": ops,
		"governance": gov,
		"licensing":  lic,
	})
}

func (a *app) printCompanyStats(cmd *cobra.Command, companies []core.Company) error {
	stats, err := analytics.CompanyStats(companies, time.Now())
	if err != nil {
		return err
	}
	sectors, err := analytics.TopSectors(companies, analytics.TopSectorsLimit)
	if err != nil {
		return err
	}
	return a.print(cmd.OutOrStdout(), map[string]any{
		"stats":       stats,
		"top_sectors": sectors,
	})
}

func newTopCmd(a *app) *cobra.Command {
	var (
		table    string
		field    string
		score    string
		sumField string
		n        int
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Rank groups by count, pass rate or a summed field",
		Example: `  gravlctl top --field reagent_kit --score pass-rate --n 5
  gravlctl top --field dataset_type --score sum --sum value_dollars
  gravlctl top --table companies --field sector`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tableArg(table)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var ranked []analytics.Ranked
			if t == records.TableCompanies {
				companies, err := a.result.Backend.ListCompanies(ctx)
				if err != nil {
					return err
				}
				fn, err := scoreFunc[core.Company](score, sumField, nil)
				if err != nil {
					return err
				}
				if ranked, err = topN(companies, field, fn, n); err != nil {
					return err
				}
			} else {
				runs, err := a.result.Backend.ListRuns(ctx)
				if err != nil {
					return err
				}
				fn, err := scoreFunc(score, sumField, core.Run.Passed)
				if err != nil {
					return err
				}
				if ranked, err = topN(runs, field, fn, n); err != nil {
					return err
				}
			}
			return a.print(cmd.OutOrStdout(), map[string]any{
				"field": field,
				"score": score,
				"top":   ranked,
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "runs", "runs or companies")
	cmd.Flags().StringVar(&field, "field", "", "field to group by")
	cmd.Flags().StringVar(&score, "score", "count", "count, pass-rate or sum")
	cmd.Flags().StringVar(&sumField, "sum", "", "numeric field totalled by --score sum")
	cmd.Flags().IntVar(&n, "n", 5, "number of groups to keep")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

// scoreFunc resolves a score name. pass is nil for record types without a
// pass/fail outcome.
func scoreFunc[R analytics.Record](name, sumField string, pass func(R) bool) (analytics.ScoreFunc[R], error) {
	switch name {
	case "count":
		return analytics.CountScore[R], nil
	case "pass-rate":
		if pass == nil {
			return nil, errors.New("pass-rate is only defined for runs")
		}
		return analytics.RateScore(pass), nil
	case "sum":
		if !known[R](sumField) {
			return nil, fmt.Errorf("--sum: unknown field %q", sumField)
		}
		return analytics.SumScore[R](sumField), nil
	default:
		return nil, fmt.Errorf("unknown score %q (want count, pass-rate or sum)", name)
	}
}

func topN[R analytics.Record](rows []R, field string, score analytics.ScoreFunc[R], n int) ([]analytics.Ranked, error) {
	if !known[R](field) {
		return nil, fmt.Errorf("--field: unknown field %q", field)
	}
	return analytics.TopNByScore(rows, field, score, n)
}

func newFilterCmd(a *app) *cobra.Command {
	var (
		where  []string
		search string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "filter <runs|companies>",
		Short: "Select records matching every criterion",
		Example: `  gravlctl filter runs --where facility_name=Broad --where qc_status=Fail
  gravlctl filter companies --where category=mega-winner --search nova`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := tableArg(args[0])
			if err != nil {
				return err
			}
			criteria, err := parseWhere(where)
			if err != nil {
				return err
			}
			if search != "" {
				criteria = criteria.And(analytics.Search(search))
			}

			ctx := cmd.Context()
			if table == records.TableCompanies {
				companies, err := selectRecords(ctx, criteria, a.result.Backend.ListCompanies, a.result.Backend.ListCompaniesWhere, core.IsCompanyColumn)
				if err != nil {
					return err
				}
				return printFiltered(a, cmd, companies, criteria, limit)
			}
			runs, err := selectRecords(ctx, criteria, a.result.Backend.ListRuns, a.result.Backend.ListRunsWhere, core.IsRunColumn)
			if err != nil {
				return err
			}
			return printFiltered(a, cmd, runs, criteria, limit)
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "field=value criterion, repeatable")
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive free-text search")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many records (0 = all)")
	return cmd
}

func parseWhere(pairs []string) (analytics.Criteria, error) {
	criteria := analytics.Criteria{}
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("--where %q: want field=value", p)
		}
		criteria = criteria.And(analytics.Where(field, strings.TrimSpace(value)))
	}
	return criteria, nil
}

// selectRecords loads the records a filter needs. The first criterion on a
// stored text column is answered by the store; the full conjunction is then
// applied in memory.
func selectRecords[R analytics.Record](
	ctx context.Context,
	criteria analytics.Criteria,
	all func(context.Context) ([]R, error),
	where func(context.Context, string, string) ([]R, error),
	stored func(string) bool,
) ([]R, error) {
	if err := criteria.Validate(known[R]); err != nil {
		return nil, err
	}
	var (
		rows []R
		err  error
	)
	pushed := false
	for _, cr := range criteria.Active() {
		if cr.Field != analytics.SearchField && stored(cr.Field) && pushable[R](cr.Field) {
			rows, err = where(ctx, cr.Field, cr.Value)
			pushed = true
			break
		}
	}
	if !pushed {
		rows, err = all(ctx)
	}
	if err != nil {
		return nil, err
	}
	return analytics.Filter(rows, criteria)
}

func printFiltered[R analytics.Record](a *app, cmd *cobra.Command, rows []R, criteria analytics.Criteria, limit int) error {
	page := rows
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return a.print(cmd.OutOrStdout(), map[string]any{
		"total":    len(rows),
		"count":    len(page),
		"criteria": criteria.Active(),
		"records":  page,
	})
}

func known[R analytics.Record](field string) bool {
	var zero R
	_, ok := zero.Field(field)
	return ok
}

// temporalColumns are stored as text here but rendered differently by each
// store, so they are never pushed down.
var temporalColumns = map[string]bool{
	"timestamp_captured": true,
	"order_date":         true,
	"date_founded":       true,
}

// pushable reports whether a criterion on field compares the same way in
// every store: plain text columns only.
func pushable[R analytics.Record](field string) bool {
	var zero R
	v, ok := zero.Field(field)
	_, text := v.(string)
	return ok && text && !temporalColumns[field]
}
