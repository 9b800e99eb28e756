package matcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func assertConsistent(t *testing.T, r Result) {
	t.Helper()
	hasEntity := r.Entity != nil
	assert.Equal(t, hasEntity, r.Method != "", "method must be set iff entity is set")
	assert.Equal(t, hasEntity, r.Confidence != "", "confidence must be set iff entity is set")
}

func TestMatch_Tiers(t *testing.T) {
	pool := []Candidate{
		{ID: "c1", Name: "Maria Silva", AccountNumber: "ACC-001", CPF: "123.456.789-00", Active: true},
		{ID: "c2", Name: "Acme Ltda", CNPJ: "12.345.678/0001-90", Active: true},
		{ID: "c3", Name: "João Souza", CPF: "987.654.321-00", Active: false},
	}

	tests := []struct {
		name       string
		input      Input
		wantID     string
		wantMethod Method
		wantConf   Confidence
	}{
		{"account number case-insensitive", Input{AccountNumber: "acc-001"}, "c1", MethodAccountNumber, ConfidenceHigh},
		{"account number with spaces", Input{AccountNumber: "  ACC-001 "}, "c1", MethodAccountNumber, ConfidenceHigh},
		{"cpf formatting ignored", Input{CPF: "12345678900"}, "c1", MethodCPF, ConfidenceHigh},
		{"cnpj", Input{CNPJ: "12345678000190"}, "c2", MethodCNPJ, ConfidenceHigh},
		{"name", Input{Name: "  ACME LTDA "}, "c2", MethodName, ConfidenceLow},
		{"unicode name", Input{Name: "JOÃO SOUZA"}, "c3", MethodName, ConfidenceLow},
		{"account wins over name", Input{AccountNumber: "ACC-001", Name: "Acme Ltda"}, "c1", MethodAccountNumber, ConfidenceHigh},
		{"cpf wins over name", Input{CPF: "987.654.321-00", Name: "Maria Silva"}, "c3", MethodCPF, ConfidenceHigh},
		{"unknown account falls to cpf", Input{AccountNumber: "ACC-999", CPF: "123.456.789-00"}, "c1", MethodCPF, ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Match(pool, tt.input, nil)
			assertConsistent(t, r)
			require.True(t, r.Matched())
			assert.Equal(t, tt.wantID, r.Entity.ID)
			assert.Equal(t, tt.wantMethod, r.Method)
			assert.Equal(t, tt.wantConf, r.Confidence)
		})
	}
}

func TestMatch_NoMatch(t *testing.T) {
	pool := []Candidate{
		{ID: "c1", Name: "Maria Silva", AccountNumber: "ACC-001", CPF: "123.456.789", Active: true},
	}

	tests := []struct {
		name  string
		pool  []Candidate
		input Input
	}{
		{"empty input", pool, Input{}},
		{"whitespace input", pool, Input{AccountNumber: "   ", Name: "\t"}},
		{"empty pool", nil, Input{AccountNumber: "ACC-001"}},
		{"short cpf stored and supplied", pool, Input{CPF: "123456789"}},
		{"short cnpj", []Candidate{{ID: "x", CNPJ: "1234567890123"}}, Input{CNPJ: "1234567890123"}},
		{"unknown everything", pool, Input{AccountNumber: "nope", CPF: "00000000000", Name: "nobody"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Match(tt.pool, tt.input, nil)
			assertConsistent(t, r)
			assert.False(t, r.Matched())
			assert.Equal(t, Result{}, r)
		})
	}
}

func TestMatch_ScenarioAccountReference(t *testing.T) {
	pool := []Candidate{{ID: "1", AccountNumber: "ACC-001", CPF: "123.456.789-00", Active: true}}

	r := Match(pool, Input{AccountNumber: "acc-001"}, nil)
	require.True(t, r.Matched())
	assert.Equal(t, MethodAccountNumber, r.Method)
	assert.Equal(t, ConfidenceHigh, r.Confidence)
}

func TestMatch_ShortCPFFallsThroughToName(t *testing.T) {
	pool := []Candidate{
		{ID: "short", Name: "Ana Lima", CPF: "1234567", Active: true},
	}

	r := Match(pool, Input{CPF: "1234567"}, nil)
	assert.False(t, r.Matched())

	r = Match(pool, Input{CPF: "1234567", Name: "ana lima"}, nil)
	require.True(t, r.Matched())
	assert.Equal(t, MethodName, r.Method)
	assert.Equal(t, ConfidenceLow, r.Confidence)
}

func TestMatch_TieBreak(t *testing.T) {
	tests := []struct {
		name   string
		pool   []Candidate
		wantID string
	}{
		{
			name: "active beats earlier inactive",
			pool: []Candidate{
				{ID: "old", AccountNumber: "ACC-7", Active: false},
				{ID: "new", AccountNumber: "acc-7", Active: true},
			},
			wantID: "new",
		},
		{
			name: "first active wins",
			pool: []Candidate{
				{ID: "a", AccountNumber: "ACC-7", Active: true},
				{ID: "b", AccountNumber: "ACC-7", Active: true},
			},
			wantID: "a",
		},
		{
			name: "first inactive wins when none active",
			pool: []Candidate{
				{ID: "a", AccountNumber: "ACC-7"},
				{ID: "b", AccountNumber: "ACC-7"},
			},
			wantID: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Match(tt.pool, Input{AccountNumber: "ACC-7"}, nil)
			require.True(t, r.Matched())
			assert.Equal(t, tt.wantID, r.Entity.ID)
		})
	}
}

func TestMatch_ActiveAlwaysPreferredRegardlessOfOrder(t *testing.T) {
	for n := 1; n <= 6; n++ {
		for activePos := 0; activePos < n; activePos++ {
			pool := make([]Candidate, n)
			for i := range pool {
				pool[i] = Candidate{ID: fmt.Sprintf("c%d", i), AccountNumber: "DUP"}
			}
			pool[activePos].Active = true

			r := Match(pool, Input{AccountNumber: "dup"}, nil)
			require.True(t, r.Matched())
			assert.True(t, r.Entity.Active)
			assert.Equal(t, fmt.Sprintf("c%d", activePos), r.Entity.ID)
		}
	}
}

func TestMatch_MappingFallback(t *testing.T) {
	pool := []Candidate{
		{ID: "client-9", Name: "Beta SA", AccountNumber: "NEW-9", Active: true},
	}
	mappings := MappingTable{}
	mappings.Add("LEGACY-9", "client-9")
	mappings.Add("LEGACY-GONE", "client-missing")

	tests := []struct {
		name       string
		input      Input
		mappings   MappingTable
		wantID     string
		wantMethod Method
		wantConf   Confidence
	}{
		{"mapped legacy account", Input{AccountNumber: "legacy-9"}, mappings, "client-9", MethodAccountMapping, ConfidenceHigh},
		{"direct tier wins over mapping", Input{AccountNumber: "NEW-9"}, mappings, "client-9", MethodAccountNumber, ConfidenceHigh},
		{"name tier wins over mapping", Input{AccountNumber: "LEGACY-9", Name: "beta sa"}, mappings, "client-9", MethodName, ConfidenceLow},
		{"mapped id not in pool", Input{AccountNumber: "LEGACY-GONE"}, mappings, "", "", ""},
		{"no account number skips mapping", Input{Name: "unknown"}, mappings, "", "", ""},
		{"nil mapping table", Input{AccountNumber: "LEGACY-9"}, nil, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Match(pool, tt.input, tt.mappings)
			assertConsistent(t, r)
			if tt.wantID == "" {
				assert.False(t, r.Matched())
				return
			}
			require.True(t, r.Matched())
			assert.Equal(t, tt.wantID, r.Entity.ID)
			assert.Equal(t, tt.wantMethod, r.Method)
			assert.Equal(t, tt.wantConf, r.Confidence)
		})
	}
}

func TestMatch_Deterministic(t *testing.T) {
	pool := []Candidate{
		{ID: "a", Name: "Same", Active: false},
		{ID: "b", Name: "same", Active: true},
		{ID: "c", Name: "SAME", Active: true},
	}
	first := Match(pool, Input{Name: "same"}, nil)
	for i := 0; i < 20; i++ {
		r := Match(pool, Input{Name: "same"}, nil)
		assert.Equal(t, first, r)
	}
	assert.Equal(t, "b", first.Entity.ID)
}

func TestMatch_DoesNotAliasPool(t *testing.T) {
	pool := []Candidate{{ID: "c1", AccountNumber: "A1", Active: true}}
	r := Match(pool, Input{AccountNumber: "A1"}, nil)
	require.True(t, r.Matched())

	r.Entity.Name = "changed"
	assert.Empty(t, pool[0].Name)
}

func TestMatch_ResultInvariantAcrossInputs(t *testing.T) {
	pool := []Candidate{
		{ID: "1", Name: "Alpha", AccountNumber: "A-1", CPF: "111.111.111-11", CNPJ: "11.111.111/0001-11", Active: true},
		{ID: "2", Name: "Beta", AccountNumber: "B-2", CPF: "222", Active: false},
		{ID: "3", Name: "", AccountNumber: "", Active: true},
	}
	inputs := []Input{
		{}, {AccountNumber: "a-1"}, {AccountNumber: "zzz"}, {CPF: "222"}, {CPF: "11111111111"},
		{CNPJ: "11111111000111"}, {CNPJ: "1"}, {Name: "beta"}, {Name: ""}, {AccountNumber: "b-2", Name: "alpha"},
	}
	for _, in := range inputs {
		assertConsistent(t, Match(pool, in, MappingTable{"zzz": "3"}))
	}
}

func TestMatcher_MatchAll(t *testing.T) {
	pool := []Candidate{
		{ID: "c1", Name: "Maria", AccountNumber: "ACC-1", Active: true},
		{ID: "c2", Name: "Pedro", CPF: "111.222.333-44", Active: true},
	}
	mappings := MappingTable{}
	mappings.Add("OLD-1", "c1")

	m := New(mappings)
	results := m.MatchAll(pool, []Input{
		{AccountNumber: "acc-1"},
		{CPF: "11122233344"},
		{AccountNumber: "old-1"},
		{Name: "nobody"},
	})

	require.Len(t, results, 4)
	assert.Equal(t, MethodAccountNumber, results[0].Method)
	assert.Equal(t, MethodCPF, results[1].Method)
	assert.Equal(t, MethodAccountMapping, results[2].Method)
	assert.False(t, results[3].Matched())

	s := Summarize(results)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Matched)
	assert.Equal(t, 1, s.Unmatched)
	assert.Equal(t, 1, s.ByMethod[MethodAccountMapping])
}

func TestMatcher_MatchEqualsPureMatch(t *testing.T) {
	pool := []Candidate{{ID: "c1", Name: "Maria", AccountNumber: "ACC-1", Active: true}}
	m := New(nil)
	in := Input{Name: "MARIA"}
	assert.Equal(t, Match(pool, in, nil), m.Match(pool, in))
}
