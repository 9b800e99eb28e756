package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crm-cli/internal/scorer"
	"github.com/sells-group/crm-cli/internal/store"
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Inspect saved match records",
}

var matchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List match records saved by match --save, oldest first",
	RunE:  runMatchesList,
}

var prospectsTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the latest saved score of each prospect, highest first",
	Long: `Reads the score history written by score --save. History is only kept by
the postgres store driver.`,
	RunE: runProspectsTop,
}

func init() {
	f := matchesListCmd.Flags()
	f.Int("limit", store.DefaultPageSize, "maximum number of records")
	f.Int("offset", 0, "records to skip")
	f.String("format", formatTable, "output format: table or csv")
	f.String("output", "", "write results to a file instead of stdout")
	matchesCmd.AddCommand(matchesListCmd)

	pf := prospectsTopCmd.Flags()
	pf.Float64("min-score", 0, "minimum latest score (default from config)")
	pf.Int("limit", 0, "maximum number of prospects, 0 for all")
	pf.String("format", formatTable, "output format: table or csv")
	pf.String("output", "", "write results to a file instead of stdout")
	prospectsCmd.AddCommand(prospectsTopCmd)

	rootCmd.AddCommand(matchesCmd)
}

func runMatchesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := cfg.Validate("store"); err != nil {
		return err
	}

	var page store.Page
	page.Limit, _ = cmd.Flags().GetInt("limit")
	page.Offset, _ = cmd.Flags().GetInt("offset")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	if err := validateFormat(format); err != nil {
		return eris.Wrap(err, "matches list")
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return eris.Wrap(err, "matches list")
	}
	defer closeOut() //nolint:errcheck

	return listMatchRecords(ctx, st, page, format, w)
}

func listMatchRecords(ctx context.Context, st store.Store, page store.Page, format string, w io.Writer) error {
	records, err := st.ListMatchRecords(ctx, page)
	if err != nil {
		return eris.Wrap(err, "matches list")
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No match records.")
		return nil
	}
	if format == formatCSV {
		return writeMatchRecordsCSV(w, records)
	}
	return writeMatchRecordsTable(w, records)
}

func writeMatchRecordsCSV(w io.Writer, records []store.MatchRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"id", "source_ref", "client_id", "method", "confidence", "created_at"}); err != nil {
		return eris.Wrap(err, "matches list: write CSV header")
	}
	for _, r := range records {
		row := []string{
			r.ID, r.SourceRef, r.ClientID, string(r.Method), string(r.Confidence),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "matches list: write CSV row")
		}
	}
	return nil
}

func writeMatchRecordsTable(w io.Writer, records []store.MatchRecord) error {
	header := fmt.Sprintf("%-20s %-12s %-36s %-16s %-6s\n", "Saved", "Ref", "Client ID", "Method", "Conf")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "matches list: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 94)); err != nil {
		return eris.Wrap(err, "matches list: write table separator")
	}

	for _, r := range records {
		clientID, method, conf := "-", "unmatched", "-"
		if r.ClientID != "" {
			clientID, method, conf = r.ClientID, string(r.Method), string(r.Confidence)
		}
		line := fmt.Sprintf("%-20s %-12s %-36s %-16s %-6s\n",
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), truncate(r.SourceRef, 12),
			truncate(clientID, 36), method, conf)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "matches list: write table row")
		}
	}
	return nil
}

func runProspectsTop(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := cfg.Validate("store"); err != nil {
		return err
	}

	minScore := cfg.Scorer.MinScore
	if cmd.Flags().Changed("min-score") {
		minScore, _ = cmd.Flags().GetFloat64("min-score")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	if err := validateFormat(format); err != nil {
		return eris.Wrap(err, "prospects top")
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return eris.Wrap(err, "prospects top")
	}
	defer closeOut() //nolint:errcheck

	return topProspects(ctx, st, minScore, limit, format, w)
}

// topProspects prints the newest history score per prospect at or above
// minScore.
func topProspects(ctx context.Context, st store.Store, minScore float64, limit int, format string, w io.Writer) error {
	pg, ok := st.(*store.PostgresStore)
	if !ok {
		return eris.New("prospects top: score history requires the postgres store driver")
	}

	results, err := scorer.LoadLatestScores(ctx, pg.Pool(), minScore)
	if err != nil {
		return eris.Wrap(err, "prospects top")
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No scored prospects at or above %.2f.\n", minScore)
		return nil
	}

	if format == formatCSV {
		return writeScoreCSV(w, results)
	}
	return writeScoreTable(w, results)
}
