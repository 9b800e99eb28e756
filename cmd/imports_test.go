package main

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-cli/internal/sheet"
	"github.com/sells-group/crm-cli/internal/store"
)

func readSheet(t *testing.T, name, content string) *sheet.Table {
	t.Helper()
	tbl, err := sheet.Read(context.Background(), writeFile(t, name, content), sheet.Options{})
	require.NoError(t, err)
	return tbl
}

func TestImportClients(t *testing.T) {
	st := setTestConfig(t)
	ctx := context.Background()

	tbl := readSheet(t, "clients.csv", `id,nome,conta,cpf,cnpj,ativo
c1,Acme,ACC-1,,12.345.678/0001-90,sim
,Beta,ACC-2,123.456.789-01,,não
`)

	n, err := importClients(ctx, st, tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clients, err := st.ListClients(ctx, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "c1", clients[0].ID)
	assert.True(t, clients[0].Active)
	assert.NotEmpty(t, clients[1].ID)
	assert.False(t, clients[1].Active)
	assert.Equal(t, "123.456.789-01", clients[1].CPF)
}

func TestImportMappings(t *testing.T) {
	st := setTestConfig(t)
	ctx := context.Background()

	cmd := &cobra.Command{}
	cmd.Flags().String("source", "crm-export", "")

	tbl := readSheet(t, "mappings.csv", "original_id,client_id,source\nOLD-1,c1,\nOLD-2,c2,legacy\n,c3,\n")

	n, err := importMappings(ctx, st, tbl, cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mappings, err := st.ListMappings(ctx, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "crm-export", mappings[0].Source)
	assert.Equal(t, "legacy", mappings[1].Source)
}

func TestImportMappings_MissingColumns(t *testing.T) {
	st := setTestConfig(t)
	cmd := &cobra.Command{}
	cmd.Flags().String("source", "", "")

	tbl := readSheet(t, "mappings.csv", "original_id\nOLD-1\n")
	_, err := importMappings(context.Background(), st, tbl, cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mappings import")
}

func TestImportProspects(t *testing.T) {
	st := setTestConfig(t)
	ctx := context.Background()

	tbl := readSheet(t, "prospects.csv", prospectSheet)
	n, err := importProspects(ctx, st, tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stored, err := st.ListProspects(ctx, store.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, int64(600000), stored[0].Attributes.InstagramFollowers)
	assert.Equal(t, []string{"day_trade"}, stored[0].Attributes.Niche)
	assert.Nil(t, stored[0].Score)
}
