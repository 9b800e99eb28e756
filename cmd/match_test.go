package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/store"
)

func seedClients(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := st.UpsertClients(ctx, []matcher.Candidate{
		{ID: "c-inactive", Name: "Acme Old", AccountNumber: "ACC-001", Active: false},
		{ID: "c-active", Name: "Acme", AccountNumber: "ACC-001", Active: true},
		{ID: "c-cpf", Name: "Maria Silva", CPF: "123.456.789-01", Active: true},
		{ID: "c-name", Name: "João Souza", CPF: "1234567", Active: true},
	})
	require.NoError(t, err)
	_, err = st.UpsertMappings(ctx, []store.AccountMapping{
		{OriginalID: "LEGACY-9", ClientID: "c-cpf", Source: "test"},
	})
	require.NoError(t, err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMatchFile_CSV(t *testing.T) {
	st := setTestConfig(t)
	seedClients(t, st)

	path := writeFile(t, "rows.csv", `id,conta,cpf,nome
r1,acc-001,,
r2,,12345678901,
r3,,1234567,joão souza
r4,legacy-9,,
r5,,,Nobody
`)

	var buf bytes.Buffer
	err := matchFile(context.Background(), st, matchOptions{File: path, Source: sourceStore, Format: formatCSV, Save: true}, &buf)
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)

	byRef := make(map[string][]string)
	for _, r := range records[1:] {
		byRef[r[0]] = r
	}

	assert.Equal(t, []string{"c-active", "Acme", "account_number", "high"}, byRef["r1"][5:])
	assert.Equal(t, []string{"c-cpf", "Maria Silva", "cpf", "high"}, byRef["r2"][5:])
	assert.Equal(t, []string{"c-name", "João Souza", "name", "low"}, byRef["r3"][5:])
	assert.Equal(t, []string{"c-cpf", "Maria Silva", "account_mapping", "high"}, byRef["r4"][5:])
	assert.Equal(t, []string{"", "", "", ""}, byRef["r5"][5:])

	saved, err := st.ListMatchRecords(context.Background(), store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, saved, 5)
	assert.Equal(t, "r1", saved[0].SourceRef)
	assert.Equal(t, "c-active", saved[0].ClientID)
	assert.Empty(t, saved[4].ClientID)
}

func TestMatchFile_TableSummary(t *testing.T) {
	st := setTestConfig(t)
	seedClients(t, st)

	path := writeFile(t, "rows.csv", "account_number\nACC-001\nMISSING\n")

	var buf bytes.Buffer
	err := matchFile(context.Background(), st, matchOptions{File: path, Format: formatTable}, &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "c-active")
	assert.Contains(t, out, "unmatched")
	assert.Contains(t, out, "Rows:       2")
	assert.Contains(t, out, "Matched:    1 (50.0%)")
	assert.Contains(t, out, "account_number   1")

	saved, err := st.ListMatchRecords(context.Background(), store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestMatchFile_BadHeader(t *testing.T) {
	st := setTestConfig(t)
	path := writeFile(t, "rows.csv", "foo,bar\n1,2\n")

	err := matchFile(context.Background(), st, matchOptions{File: path, Format: formatTable}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match: parse rows")
}

func TestDescribeInput(t *testing.T) {
	assert.Equal(t, "ACC", describeInput(matcher.Input{AccountNumber: "ACC", Name: "x"}))
	assert.Equal(t, "x", describeInput(matcher.Input{Name: "x"}))
	assert.Equal(t, "-", describeInput(matcher.Input{}))
}
