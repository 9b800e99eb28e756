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

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/sheet"
	"github.com/sells-group/crm-cli/internal/store"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve spreadsheet rows to canonical clients",
	Long: `Reads rows from a CSV or XLSX file and resolves each one against the full
client pool. Identifiers are tried in order: account number, CPF, CNPJ, then
name. Rows whose account number appears in the mapping table fall back to the
mapped client.

Examples:
  # Match a CSV against clients in the store
  match --file rows.csv

  # Match a Latin-1 export against Salesforce accounts
  match --file rows.csv --encoding latin1 --source salesforce

  # Match one sheet of a workbook, write CSV, keep the results
  match --file export.xlsx --sheet Clientes --format csv --output matches.csv --save`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.String("file", "", "CSV or XLSX file with rows to match (required)")
	f.String("sheet", "", "XLSX sheet name (default: first sheet)")
	f.String("encoding", "", "CSV charset, e.g. latin1 (default: utf-8)")
	f.String("source", "", "candidate pool source: store or salesforce (default from config)")
	f.String("format", formatTable, "output format: table or csv")
	f.String("output", "", "output file path (default: stdout)")
	f.Bool("save", false, "save match records to the store")
	_ = matchCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(matchCmd)
}

type matchOptions struct {
	File     string
	Sheet    string
	Encoding string
	Source   string
	Format   string
	Save     bool
}

// matchOutcome pairs a sheet row with its result.
type matchOutcome struct {
	Row    sheet.MatchRow
	Result matcher.Result
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate("store"); err != nil {
		return err
	}

	opts := matchOptions{}
	opts.File, _ = cmd.Flags().GetString("file")
	opts.Sheet, _ = cmd.Flags().GetString("sheet")
	opts.Encoding, _ = cmd.Flags().GetString("encoding")
	opts.Source, _ = cmd.Flags().GetString("source")
	opts.Format, _ = cmd.Flags().GetString("format")
	opts.Save, _ = cmd.Flags().GetBool("save")
	outputPath, _ := cmd.Flags().GetString("output")

	if opts.Source == "" {
		opts.Source = cfg.Matcher.Source
	}
	if err := validateFormat(opts.Format); err != nil {
		return eris.Wrap(err, "match")
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return eris.Wrap(err, "match")
	}
	defer closeOut() //nolint:errcheck

	return matchFile(ctx, st, opts, w)
}

// matchFile runs a full match of opts.File against the pool from opts.Source
// and writes the outcomes and a summary to w.
func matchFile(ctx context.Context, st store.Store, opts matchOptions, w io.Writer) error {
	log := zap.L().With(zap.String("command", "match"), zap.String("file", opts.File))

	tbl, err := sheet.Read(ctx, opts.File, sheet.Options{SheetName: opts.Sheet, Encoding: opts.Encoding})
	if err != nil {
		return eris.Wrap(err, "match: read file")
	}
	rows, err := sheet.MatchRows(tbl)
	if err != nil {
		return eris.Wrap(err, "match: parse rows")
	}
	log.Info("rows loaded", zap.Int("rows", len(rows)))

	pool, mappings, err := loadPool(ctx, st, opts.Source)
	if err != nil {
		return eris.Wrap(err, "match: load pool")
	}

	inputs := make([]matcher.Input, len(rows))
	for i, r := range rows {
		inputs[i] = r.Input
	}
	results := matcher.New(mappings).MatchAll(pool, inputs)

	outcomes := make([]matchOutcome, len(rows))
	for i := range rows {
		outcomes[i] = matchOutcome{Row: rows[i], Result: results[i]}
	}

	switch opts.Format {
	case formatCSV:
		err = writeMatchCSV(w, outcomes)
	default:
		err = writeMatchTable(w, outcomes)
	}
	if err != nil {
		return err
	}

	if opts.Save {
		records := make([]store.MatchRecord, len(outcomes))
		for i, o := range outcomes {
			records[i] = store.NewMatchRecord(o.Row.Ref, o.Result)
		}
		if err := st.SaveMatchRecords(ctx, records); err != nil {
			return eris.Wrap(err, "match: save")
		}
		log.Info("match records saved", zap.Int("records", len(records)))
	}

	if opts.Format == formatTable {
		printMatchSummary(w, matcher.Summarize(results))
	}
	return nil
}

func writeMatchCSV(w io.Writer, outcomes []matchOutcome) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"ref", "account_number", "cpf", "cnpj", "name", "client_id", "client_name", "method", "confidence"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "match: write CSV header")
	}
	for _, o := range outcomes {
		in := o.Row.Input
		var clientID, clientName string
		if o.Result.Matched() {
			clientID, clientName = o.Result.Entity.ID, o.Result.Entity.Name
		}
		row := []string{
			o.Row.Ref, in.AccountNumber, in.CPF, in.CNPJ, in.Name,
			clientID, clientName, string(o.Result.Method), string(o.Result.Confidence),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "match: write CSV row")
		}
	}
	return nil
}

func writeMatchTable(w io.Writer, outcomes []matchOutcome) error {
	header := fmt.Sprintf("%-12s %-30s %-36s %-30s %-16s %-6s\n",
		"Ref", "Input", "Client ID", "Client Name", "Method", "Conf")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "match: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 135)); err != nil {
		return eris.Wrap(err, "match: write table separator")
	}

	for _, o := range outcomes {
		clientID, clientName, method, conf := "-", "-", "unmatched", "-"
		if o.Result.Matched() {
			clientID = o.Result.Entity.ID
			clientName = o.Result.Entity.Name
			method = string(o.Result.Method)
			conf = string(o.Result.Confidence)
		}
		line := fmt.Sprintf("%-12s %-30s %-36s %-30s %-16s %-6s\n",
			truncate(o.Row.Ref, 12), truncate(describeInput(o.Row.Input), 30),
			truncate(clientID, 36), truncate(clientName, 30), method, conf)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "match: write table row")
		}
	}
	return nil
}

// describeInput shows the first identifier present, in tier order.
func describeInput(in matcher.Input) string {
	for _, v := range []string{in.AccountNumber, in.CPF, in.CNPJ, in.Name} {
		if v != "" {
			return v
		}
	}
	return "-"
}

func printMatchSummary(w io.Writer, s matcher.Summary) {
	if s.Total == 0 {
		fmt.Fprintln(w, "No rows.")
		return
	}
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Rows:       %d\n", s.Total)
	fmt.Fprintf(w, "Matched:    %d (%.1f%%)\n", s.Matched, float64(s.Matched)/float64(s.Total)*100)
	fmt.Fprintf(w, "Unmatched:  %d\n", s.Unmatched)
	for _, m := range []matcher.Method{
		matcher.MethodAccountNumber, matcher.MethodCPF, matcher.MethodCNPJ,
		matcher.MethodName, matcher.MethodAccountMapping,
	} {
		if n := s.ByMethod[m]; n > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", m, n)
		}
	}
}
