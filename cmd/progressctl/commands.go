package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/service"
)

func (c *cli) awardCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "award <dimension> <amount>",
		Short: "Award XP to a dimension",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dim, err := model.ParseDimension(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], model.ErrInvalidAmount)
			}

			ctx, cancel := c.context(cmd)
			defer cancel()
			award, err := c.engine.Progression.AwardXP(ctx, c.userID, dim, amount, source)
			if err != nil {
				return err
			}
			return c.print(cmd, award, func(p *printer) {
				p.line("+%d XP %s (base %d x%.2f)", award.Awarded, award.Dimension, award.Base, award.Multiplier)
				if award.LevelAfter > award.LevelBefore {
					p.line("level up: %d -> %d", award.LevelBefore, award.LevelAfter)
				}
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "Source recorded in the XP ledger")
	return cmd
}

func (c *cli) activityCmd() *cobra.Command {
	var (
		dimension string
		title     string
		minutes   float64
		quality   float64
		at        string
		metrics   map[string]string
	)
	cmd := &cobra.Command{
		Use:   "activity <type>",
		Short: "Record an activity",
		Long: `Record an activity, extend its streak and award XP.

Known types: deep_work, writing, sleep, workout, journal, task, idea,
reading, note, meditation, content_draft.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &model.Activity{
				Type:    args[0],
				Title:   title,
				Metrics: map[string]float64{},
			}
			if dimension != "" {
				dim, err := model.ParseDimension(dimension)
				if err != nil {
					return err
				}
				a.Dimension = model.DimensionPtr(dim)
			}
			if minutes > 0 {
				a.Metrics[model.MetricKeyDuration] = minutes
			}
			if quality > 0 {
				a.Metrics[model.MetricKeyQuality] = quality
			}
			for k, v := range metrics {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("metric %s=%q is not a number", k, v)
				}
				a.Metrics[k] = f
			}
			if at != "" {
				t, err := parseWhen(at, c.engine.Location)
				if err != nil {
					return err
				}
				a.OccurredAt = t
			}

			ctx, cancel := c.context(cmd)
			defer cancel()
			res, err := c.engine.Progression.RecordActivity(ctx, c.userID, a)
			if err != nil {
				return err
			}
			return c.print(cmd, res, func(p *printer) {
				p.line("recorded %s %s", res.Activity.Type, res.Activity.ID)
				if res.XP != nil {
					p.line("+%d XP %s", res.XP.Awarded, res.XP.Dimension)
				}
				if res.Streak != nil {
					p.line("streak %s: %d (longest %d)", res.Streak.Type, res.Streak.CurrentCount, res.Streak.LongestCount)
				}
				if res.Rating != nil {
					p.line("rating %s: %d", res.Rating.Dimension, res.Rating.After)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&dimension, "dimension", "d", "", "Dimension override")
	cmd.Flags().StringVar(&title, "title", "", "Activity title")
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "Duration in minutes")
	cmd.Flags().Float64Var(&quality, "quality", 0, "Quality score 1-10")
	cmd.Flags().StringVar(&at, "at", "", "When it happened (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringToStringVarP(&metrics, "metric", "m", nil, "Extra metrics as key=value")
	return cmd
}

func (c *cli) freezeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "freeze <streak>",
		Short: "Grant a streak freeze token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := model.StreakType(args[0])
			if !typ.Valid() {
				return fmt.Errorf("unknown streak type %q", args[0])
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			rec, err := c.engine.Progression.GrantFreeze(ctx, c.userID, typ)
			if err != nil {
				return err
			}
			return c.print(cmd, rec, func(p *printer) {
				p.line("%s: %d freeze token(s)", rec.Type, rec.FreezeTokens)
			})
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show levels, ratings, streaks and the wellness index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			st, err := c.engine.Progression.State(ctx, c.userID)
			if err != nil {
				return err
			}
			idx, err := c.engine.Aggregator.Compute(ctx, c.userID)
			if err != nil {
				return err
			}
			out := struct {
				State         *model.ProgressionState `json:"state"`
				WellnessIndex *model.WellnessIndex    `json:"wellness_index"`
			}{st, idx}
			return c.print(cmd, out, func(p *printer) {
				p.line("user %s  index %d  total XP %d  overall rating %d (%s)",
					st.UserID, st.PermanentIndex, st.TotalXP, st.OverallRating, st.OverallRatingTrend)
				if idx.HasValue {
					p.line("wellness %.1f (%s)", idx.Value, idx.Trend)
				}
				p.line("")
				p.line("%-14s %5s %8s %7s", "DIMENSION", "LEVEL", "XP", "RATING")
				for _, d := range model.AllDimensions {
					dp, ok := st.Dimensions[d]
					if !ok {
						continue
					}
					p.line("%-14s %5d %8d %7d", d, dp.Level, dp.TotalXP, dp.Rating)
				}
				p.line("")
				p.line("%-18s %7s %7s %6s", "STREAK", "CURRENT", "LONGEST", "FREEZE")
				for _, typ := range model.AllStreakTypes {
					s, ok := st.Streaks[typ]
					if !ok {
						continue
					}
					p.line("%-18s %7d %7d %6d", typ, s.CurrentCount, s.LongestCount, s.FreezeTokens)
				}
			})
		},
	}
}

func (c *cli) queryCmd() *cobra.Command {
	var dimension string
	cmd := &cobra.Command{
		Use:   "query <type>",
		Short: "Run a level-system query",
		Long:  "Run a level-system query. Types: " + queryTypeList() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dim *model.Dimension
			if dimension != "" {
				d, err := model.ParseDimension(dimension)
				if err != nil {
					return err
				}
				dim = model.DimensionPtr(d)
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			res, err := c.engine.Query.Query(ctx, c.userID, service.QueryType(args[0]), dim)
			if err != nil {
				return err
			}
			// query results are heterogeneous; always JSON
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&dimension, "dimension", "d", "", "Narrow to one dimension")
	return cmd
}

func (c *cli) badgesCmd() *cobra.Command {
	var earned bool
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "List badge progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			if earned {
				unlocks, err := c.engine.Badges.Earned(ctx, c.userID)
				if err != nil {
					return err
				}
				return c.print(cmd, unlocks, func(p *printer) {
					for _, u := range unlocks {
						p.line("%-24s %-8s +%d XP  %s", u.BadgeID, u.Tier, u.XPAwarded, u.UnlockedAt.Format(time.DateOnly))
					}
				})
			}
			progress, err := c.engine.Badges.Progress(ctx, c.userID)
			if err != nil {
				return err
			}
			return c.print(cmd, progress, func(p *printer) {
				for _, b := range progress {
					p.line("%-24s %-8s %-9s %3.0f%%", b.BadgeID, b.Tier, b.State, b.Progress*100)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&earned, "earned", false, "Only badges already earned")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			var (
				report *model.DailyCronReport
				err    error
			)
			if date != "" {
				day, perr := model.ParseDateKey(date, c.engine.Location)
				if perr != nil {
					return fmt.Errorf("date %q: %w", date, perr)
				}
				report, err = c.engine.Scheduler.RunForDate(ctx, c.userID, day)
			} else {
				report, err = c.engine.Scheduler.RunNow(ctx, c.userID)
			}
			if err != nil {
				return err
			}
			return c.print(cmd, report, func(p *printer) {
				p.report(report)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Run for a specific date (YYYY-MM-DD)")
	return cmd
}

func (c *cli) catchUpCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "catch-up",
		Short: "Run every missed day up to today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			if all {
				byUser, err := c.engine.Scheduler.CatchUpAll(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd, byUser, func(p *printer) {
					for user, reports := range byUser {
						p.line("user %s: %d run(s)", user, len(reports))
						for _, r := range reports {
							p.report(r)
						}
					}
				})
			}
			reports, err := c.engine.Scheduler.CatchUp(ctx, c.userID)
			if err != nil {
				return err
			}
			return c.print(cmd, reports, func(p *printer) {
				if len(reports) == 0 {
					p.line("nothing to catch up")
				}
				for _, r := range reports {
					p.report(r)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Catch up every known user")
	return cmd
}

func (c *cli) correlateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correlate",
		Short: "Analyze correlations between daily metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			res, err := c.engine.Analyzer.Analyze(ctx, c.userID, c.engine.Progression.Now())
			if err != nil {
				return err
			}
			return c.print(cmd, res, func(p *printer) {
				p.line("%d metric(s), %d pair(s) evaluated, %d skipped",
					res.Metrics, res.PairsEvaluated, res.PairsSkipped)
				for _, in := range res.Discovered {
					p.line("new   %s ~ %s  r=%+.2f n=%d", in.MetricA, in.MetricB, in.Coefficient, in.SampleSize)
				}
				for _, in := range res.Revalidated {
					p.line("seen  %s ~ %s  r=%+.2f x%d", in.MetricA, in.MetricB, in.Coefficient, in.ValidationCount)
				}
			})
		},
	}
}

func (c *cli) reportsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Show the daily run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must not be negative")
			}
			ctx, cancel := c.context(cmd)
			defer cancel()
			entries, err := c.engine.Scheduler.History(ctx, c.userID, limit)
			if err != nil {
				return err
			}
			return c.print(cmd, entries, func(p *printer) {
				for _, e := range entries {
					status := "ok"
					if !e.AllSucceeded {
						status = "FAILED"
					}
					p.line("%s  %-6s %d job(s) %d change(s)", e.Date, status, e.JobCount, e.ChangeCount)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 30, "Number of runs to show")
	return cmd
}

// parseWhen accepts RFC 3339 or a bare date in loc
func parseWhen(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := model.ParseDateKey(v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: want RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

func queryTypeList() string {
	names := make([]string, len(service.QueryTypes))
	for i, q := range service.QueryTypes {
		names[i] = string(q)
	}
	return strings.Join(names, ", ")
}
