package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/sheet"
	"github.com/sells-group/crm-cli/internal/store"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manage the canonical client pool",
}

var clientsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import clients from a CSV or XLSX file",
	Long: `Upserts clients by id. Rows without an id get a new one. Recognized columns:
id/client_id, name/nome, account_number/conta, cpf, cnpj, active/ativo.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withImport(cmd, importClients)
	},
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage account mappings",
}

var mappingsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import account mappings from a CSV or XLSX file",
	Long: `Upserts original account references to canonical client ids. Required
columns: original_id and client_id. An optional source column is kept;
--source fills it when empty.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withImport(cmd, importMappings)
	},
}

var prospectsCmd = &cobra.Command{
	Use:   "prospects",
	Short: "Manage stored prospects",
}

var prospectsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import prospects from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withImport(cmd, importProspects)
	},
}

func init() {
	for _, c := range []*cobra.Command{clientsImportCmd, mappingsImportCmd, prospectsImportCmd} {
		f := c.Flags()
		f.String("file", "", "CSV or XLSX file (required)")
		f.String("sheet", "", "XLSX sheet name (default: first sheet)")
		f.String("encoding", "", "CSV charset, e.g. latin1 (default: utf-8)")
		_ = c.MarkFlagRequired("file")
	}
	mappingsImportCmd.Flags().String("source", "import", "source recorded on mappings without one")

	clientsCmd.AddCommand(clientsImportCmd)
	mappingsCmd.AddCommand(mappingsImportCmd)
	prospectsCmd.AddCommand(prospectsImportCmd)
	rootCmd.AddCommand(clientsCmd, mappingsCmd, prospectsCmd)
}

// importFunc loads the rows of tbl into st and returns how many were written.
type importFunc func(ctx context.Context, st store.Store, tbl *sheet.Table, cmd *cobra.Command) (int, error)

func withImport(cmd *cobra.Command, fn importFunc) error {
	ctx := cmd.Context()

	if err := cfg.Validate("store"); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("file")
	sheetName, _ := cmd.Flags().GetString("sheet")
	encoding, _ := cmd.Flags().GetString("encoding")

	tbl, err := sheet.Read(ctx, path, sheet.Options{SheetName: sheetName, Encoding: encoding})
	if err != nil {
		return eris.Wrap(err, "import: read file")
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	n, err := fn(ctx, st, tbl, cmd)
	if err != nil {
		return err
	}

	zap.L().Info("import complete",
		zap.String("command", cmd.Parent().Name()),
		zap.String("file", path),
		zap.Int("rows", len(tbl.Rows)),
		zap.Int("imported", n),
	)
	return nil
}

func importClients(ctx context.Context, st store.Store, tbl *sheet.Table, _ *cobra.Command) (int, error) {
	clients, err := sheet.Clients(tbl)
	if err != nil {
		return 0, eris.Wrap(err, "clients import")
	}
	n, err := st.UpsertClients(ctx, clients)
	if err != nil {
		return 0, eris.Wrap(err, "clients import")
	}
	return n, nil
}

func importMappings(ctx context.Context, st store.Store, tbl *sheet.Table, cmd *cobra.Command) (int, error) {
	source, _ := cmd.Flags().GetString("source")
	mappings, err := sheet.Mappings(tbl, source)
	if err != nil {
		return 0, eris.Wrap(err, "mappings import")
	}
	n, err := st.UpsertMappings(ctx, mappings)
	if err != nil {
		return 0, eris.Wrap(err, "mappings import")
	}
	return n, nil
}

func importProspects(ctx context.Context, st store.Store, tbl *sheet.Table, _ *cobra.Command) (int, error) {
	prospects, err := sheet.Prospects(tbl)
	if err != nil {
		return 0, eris.Wrap(err, "prospects import")
	}
	rows := make([]store.Prospect, len(prospects))
	for i, p := range prospects {
		rows[i] = store.Prospect{ID: p.ID, Name: p.Name, Attributes: p.Attributes}
	}
	n, err := st.UpsertProspects(ctx, rows)
	if err != nil {
		return 0, eris.Wrap(err, "prospects import")
	}
	return n, nil
}
