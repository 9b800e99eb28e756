package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/scorer"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

// --- Clients ---

func TestSQLite_Clients_UpsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	clients := []matcher.Candidate{
		{ID: "c1", Name: "Maria Silva", AccountNumber: "ACC-001", CPF: "123.456.789-00", Active: true},
		{Name: "Acme Ltda", CNPJ: "12.345.678/0001-90"},
	}
	n, err := st.UpsertClients(ctx, clients)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotEmpty(t, clients[1].ID, "missing id should be generated")

	got, err := st.ListClients(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, clients[0], got[0])
	assert.Equal(t, "Acme Ltda", got[1].Name)
	assert.False(t, got[1].Active)

	count, err := st.CountClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_Clients_UpsertKeepsOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertClients(ctx, []matcher.Candidate{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}})
	require.NoError(t, err)
	_, err = st.UpsertClients(ctx, []matcher.Candidate{{ID: "a", Name: "A2", Active: true}})
	require.NoError(t, err)

	got, err := st.ListClients(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "A2", got[0].Name)
	assert.True(t, got[0].Active)
}

func TestSQLite_Clients_Paging(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var clients []matcher.Candidate
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		clients = append(clients, matcher.Candidate{ID: id})
	}
	_, err := st.UpsertClients(ctx, clients)
	require.NoError(t, err)

	page, err := st.ListClients(ctx, Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c3", page[0].ID)
	assert.Equal(t, "c4", page[1].ID)

	last, err := st.ListClients(ctx, Page{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, last, 1)
}

// --- Mappings ---

func TestSQLite_Mappings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertMappings(ctx, []AccountMapping{
		{OriginalID: "LEGACY-1", ClientID: "c1", Source: "erp"},
		{OriginalID: "LEGACY-2", ClientID: "c2"},
	})
	require.NoError(t, err)
	_, err = st.UpsertMappings(ctx, []AccountMapping{{OriginalID: "LEGACY-1", ClientID: "c9", Source: "fix"}})
	require.NoError(t, err)

	got, err := st.ListMappings(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c9", got[0].ClientID)
	assert.Equal(t, "fix", got[0].Source)
	assert.False(t, got[0].CreatedAt.IsZero())
	assert.Equal(t, "legacy-1", got[0].OriginalID)
}

func TestSQLite_Mappings_NormalizedKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertMappings(ctx, []AccountMapping{
		{OriginalID: "ACC-1", ClientID: "c1"},
		{OriginalID: " acc-1 ", ClientID: "c2"},
	})
	require.NoError(t, err)

	got, err := st.ListMappings(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acc-1", got[0].OriginalID)
	assert.Equal(t, "c2", got[0].ClientID)
}

// --- Prospects ---

func TestSQLite_Prospects_ScoreRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	prospects := []Prospect{
		{ID: "p1", Name: "Trader", Attributes: scorer.Attributes{InstagramFollowers: 600_000, EngagementRate: 8, Niche: []string{"day_trade"}, EstimatedCPL: 4}},
		{Name: "Unnamed"},
	}
	_, err := st.UpsertProspects(ctx, prospects)
	require.NoError(t, err)
	assert.NotEmpty(t, prospects[1].ID)

	got, err := st.ListProspects(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, prospects[0].Attributes, got[0].Attributes)
	assert.Nil(t, got[0].Score)
	assert.Nil(t, got[0].Breakdown)
	assert.Nil(t, got[0].ScoredAt)

	err = st.UpdateProspectScores(ctx, []scorer.ProspectScore{
		{ID: "p1", Score: 90.35, Breakdown: scorer.Breakdown{Reach: 90, Engagement: 90}, Passed: true},
	})
	require.NoError(t, err)

	got, err = st.ListProspects(ctx, Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Score)
	assert.Equal(t, 90.35, *got[0].Score)
	require.NotNil(t, got[0].Breakdown)
	assert.Equal(t, 90.0, got[0].Breakdown.Reach)
	assert.True(t, got[0].Passed)
	assert.NotNil(t, got[0].ScoredAt)
}

func TestSQLite_UpdateProspectScores_Unknown(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpdateProspectScores(context.Background(), []scorer.ProspectScore{{ID: "ghost", Score: 10}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prospect not found: ghost")
}

// --- Match records ---

func TestSQLite_MatchRecords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entity := matcher.Candidate{ID: "c1"}
	records := []MatchRecord{
		NewMatchRecord("row-2", matcher.Result{Entity: &entity, Method: matcher.MethodCPF, Confidence: matcher.ConfidenceHigh}),
		NewMatchRecord("row-3", matcher.Result{}),
	}
	require.NoError(t, st.SaveMatchRecords(ctx, records))

	got, err := st.ListMatchRecords(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "row-2", got[0].SourceRef)
	assert.Equal(t, "c1", got[0].ClientID)
	assert.Equal(t, matcher.MethodCPF, got[0].Method)
	assert.Equal(t, matcher.ConfidenceHigh, got[0].Confidence)
	assert.Empty(t, got[1].ClientID)
	assert.Empty(t, got[1].Method)
}

func TestSQLite_EmptyWritesAreNoops(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertClients(ctx, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	n, err = st.UpsertMappings(ctx, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	n, err = st.UpsertProspects(ctx, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, st.UpdateProspectScores(ctx, nil))
	assert.NoError(t, st.SaveMatchRecords(ctx, nil))
}
