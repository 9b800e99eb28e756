package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/config"
	"github.com/sells-group/crm-cli/internal/resilience"
	"github.com/sells-group/crm-cli/internal/scorer"
	"github.com/sells-group/crm-cli/internal/sheet"
	"github.com/sells-group/crm-cli/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rank prospects by qualification score",
	Long: `Scores prospects from a CSV/XLSX file, or every prospect in the store when
no file is given, and prints them ranked by score.

The score is a weighted sum of five 0-100 sub-scores: reach (30%),
engagement (25%), category fit (20%), quality (15%) and cost per lead (10%).
Weights and category tiers come from config or a YAML profile.

Examples:
  # Rank a prospect sheet
  score --file prospects.csv

  # Use a custom profile, keep the top 20 at 70+
  score --file prospects.xlsx --profile profile.yaml --min-score 70 --limit 20

  # Re-score stored prospects with manual quality ratings and save
  score --manual-quality --save

  # Export to CSV
  score --file prospects.csv --format csv --output ranked.csv`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("file", "", "CSV or XLSX file with prospects (default: prospects in the store)")
	f.String("sheet", "", "XLSX sheet name (default: first sheet)")
	f.String("encoding", "", "CSV charset, e.g. latin1 (default: utf-8)")
	f.String("profile", "", "YAML scoring profile (overrides config profile_path)")
	f.String("high-categories", "", "comma-separated high-value niches (overrides config)")
	f.String("medium-categories", "", "comma-separated medium-value niches (overrides config)")
	f.Float64("min-score", 0, "minimum score to pass (overrides config when set)")
	f.Int("limit", 0, "maximum number of results, 0 for all (overrides config when set)")
	f.Bool("manual-quality", false, "use quality_rating when present instead of the engagement proxy")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", formatTable, "output format: table or csv")
	f.Bool("save", false, "save prospects and scores to the store")

	rootCmd.AddCommand(scoreCmd)
}

type scoreOptions struct {
	File          string
	Sheet         string
	Encoding      string
	Format        string
	ManualQuality bool
	Save          bool
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("store"); err != nil {
		return err
	}

	opts := scoreOptions{}
	opts.File, _ = cmd.Flags().GetString("file")
	opts.Sheet, _ = cmd.Flags().GetString("sheet")
	opts.Encoding, _ = cmd.Flags().GetString("encoding")
	opts.Format, _ = cmd.Flags().GetString("format")
	opts.ManualQuality, _ = cmd.Flags().GetBool("manual-quality")
	opts.Save, _ = cmd.Flags().GetBool("save")
	outputPath, _ := cmd.Flags().GetString("output")

	if err := validateFormat(opts.Format); err != nil {
		return eris.Wrap(err, "score")
	}

	scorerCfg, err := buildScorerConfig(cmd, cfg.Scorer)
	if err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return eris.Wrap(err, "score")
	}
	defer closeOut() //nolint:errcheck

	return scoreProspects(ctx, st, scorerCfg, opts, w)
}

// buildScorerConfig applies the profile file and then CLI overrides to base
// and validates the result.
func buildScorerConfig(cmd *cobra.Command, base config.ScorerConfig) (config.ScorerConfig, error) {
	c := base

	profile, _ := cmd.Flags().GetString("profile")
	if profile == "" {
		profile = base.ProfilePath
	}
	if profile != "" {
		var err error
		c, err = scorer.LoadProfile(profile, c)
		if err != nil {
			return base, err
		}
	}

	c = applyScorerOverrides(cmd, c)
	if err := scorer.ValidateConfig(c); err != nil {
		return base, err
	}
	return c, nil
}

// applyScorerOverrides returns a copy of the base config with CLI flag overrides applied.
func applyScorerOverrides(cmd *cobra.Command, base config.ScorerConfig) config.ScorerConfig {
	c := base

	if v, _ := cmd.Flags().GetString("high-categories"); v != "" {
		c.HighValueCategories = splitAndTrim(v)
	}
	if v, _ := cmd.Flags().GetString("medium-categories"); v != "" {
		c.MediumValueCategories = splitAndTrim(v)
	}
	if cmd.Flags().Changed("min-score") {
		c.MinScore, _ = cmd.Flags().GetFloat64("min-score")
	}
	if cmd.Flags().Changed("limit") {
		c.MaxProspects, _ = cmd.Flags().GetInt("limit")
	}

	return c
}

// scoreProspects loads prospects from opts.File or the store, ranks them and
// writes the results to w.
func scoreProspects(ctx context.Context, st store.Store, scorerCfg config.ScorerConfig, opts scoreOptions, w io.Writer) error {
	log := zap.L().With(zap.String("command", "score"))

	prospects, err := loadProspects(ctx, st, opts)
	if err != nil {
		return err
	}
	if len(prospects) == 0 {
		fmt.Fprintln(w, "No prospects to score.")
		return nil
	}

	var scorerOpts []scorer.Option
	if opts.ManualQuality {
		scorerOpts = append(scorerOpts, scorer.WithQualityRater(scorer.ManualQuality{}))
	}
	s := scorer.New(scorerCfg, scorerOpts...)

	log.Info("scoring prospects",
		zap.Int("prospects", len(prospects)),
		zap.Float64("min_score", scorerCfg.MinScore),
		zap.Int("limit", scorerCfg.MaxProspects),
	)

	results, err := scorer.ScoreAll(ctx, s, prospects, scorerCfg.Concurrency)
	if err != nil {
		return eris.Wrap(err, "score: ranking")
	}

	switch opts.Format {
	case formatCSV:
		err = writeScoreCSV(w, results)
	default:
		err = writeScoreTable(w, results)
	}
	if err != nil {
		return err
	}

	if opts.Save {
		if err := saveScores(ctx, st, scorerCfg, results); err != nil {
			return err
		}
		log.Info("scores saved", zap.Int("prospects", len(results)))
	}

	if opts.Format == formatTable {
		printScoreSummary(w, results)
	}
	return nil
}

// loadProspects reads prospects from the sheet in opts or the store. Sheet
// prospects are upserted first when saving so every score has a stored id.
func loadProspects(ctx context.Context, st store.Store, opts scoreOptions) ([]scorer.Prospect, error) {
	if opts.File == "" {
		stored, err := store.AllProspects(ctx, st, cfg.Matcher.PageSize, retryPolicy())
		if err != nil {
			return nil, eris.Wrap(err, "score: load stored prospects")
		}
		out := make([]scorer.Prospect, len(stored))
		for i, p := range stored {
			out[i] = scorer.Prospect{ID: p.ID, Name: p.Name, Attributes: p.Attributes}
		}
		return out, nil
	}

	tbl, err := sheet.Read(ctx, opts.File, sheet.Options{SheetName: opts.Sheet, Encoding: opts.Encoding})
	if err != nil {
		return nil, eris.Wrap(err, "score: read file")
	}
	prospects, err := sheet.Prospects(tbl)
	if err != nil {
		return nil, eris.Wrap(err, "score: parse rows")
	}

	if opts.Save && len(prospects) > 0 {
		rows := make([]store.Prospect, len(prospects))
		for i, p := range prospects {
			rows[i] = store.Prospect{ID: p.ID, Name: p.Name, Attributes: p.Attributes}
		}
		if _, err := st.UpsertProspects(ctx, rows); err != nil {
			return nil, eris.Wrap(err, "score: save prospects")
		}
		for i := range prospects {
			prospects[i].ID = rows[i].ID
		}
	}
	return prospects, nil
}

// saveScores writes the latest score onto each prospect. Postgres stores also
// keep the full history in prospect_scores.
func saveScores(ctx context.Context, st store.Store, scorerCfg config.ScorerConfig, results []scorer.ProspectScore) error {
	policy := retryPolicy().WithLogging("score.save")
	err := resilience.Do(ctx, policy, func(ctx context.Context) error {
		return st.UpdateProspectScores(ctx, results)
	})
	if err != nil {
		return eris.Wrap(err, "score: save")
	}
	if pg, ok := st.(*store.PostgresStore); ok {
		if err := scorer.SaveScores(ctx, pg.Pool(), results, scorer.ConfigHash(scorerCfg)); err != nil {
			return eris.Wrap(err, "score: save history")
		}
	}
	return nil
}

func printScoreSummary(w io.Writer, results []scorer.ProspectScore) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	total := len(results)
	passed := scorer.CountPassed(results)
	var sumScore float64
	var maxScore, minScore float64
	minScore = 101
	for _, r := range results {
		sumScore += r.Score
		if r.Score > maxScore {
			maxScore = r.Score
		}
		if r.Score < minScore {
			minScore = r.Score
		}
	}
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Total scored:  %d\n", total)
	fmt.Fprintf(w, "Passed:        %d (%.1f%%)\n", passed, float64(passed)/float64(total)*100)
	fmt.Fprintf(w, "Score range:   %.2f - %.2f\n", minScore, maxScore)
	fmt.Fprintf(w, "Average score: %.2f\n", sumScore/float64(total))
}

func writeScoreCSV(w io.Writer, results []scorer.ProspectScore) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"rank", "id", "name", "score", "passed", "reach", "engagement", "category_fit", "quality", "cost"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}

	for i, r := range results {
		b := r.Breakdown
		row := []string{
			fmt.Sprintf("%d", i+1),
			r.ID,
			r.Name,
			fmt.Sprintf("%.2f", r.Score),
			fmt.Sprintf("%v", r.Passed),
			fmt.Sprintf("%.0f", b.Reach),
			fmt.Sprintf("%.0f", b.Engagement),
			fmt.Sprintf("%.0f", b.CategoryFit),
			fmt.Sprintf("%.1f", b.Quality),
			fmt.Sprintf("%.0f", b.Cost),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	return nil
}

func writeScoreTable(w io.Writer, results []scorer.ProspectScore) error {
	header := fmt.Sprintf("%-5s %-40s %7s %6s %6s %6s %6s %6s %6s\n",
		"Rank", "Prospect", "Score", "Reach", "Eng", "Cat", "Qual", "Cost", "Pass")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 98)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}

	for i, r := range results {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		b := r.Breakdown
		line := fmt.Sprintf("%-5d %-40s %7.2f %6.0f %6.0f %6.0f %6.1f %6.0f %6v\n",
			i+1, truncate(name, 40), r.Score, b.Reach, b.Engagement, b.CategoryFit, b.Quality, b.Cost, r.Passed)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}
	return nil
}
