package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mappingUpsert() UpsertConfig {
	return UpsertConfig{
		Table:        "account_mappings",
		Columns:      []string{"original_id", "client_id", "source"},
		ConflictKeys: []string{"original_id"},
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, mappingUpsert(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     UpsertConfig
		wantErr string
	}{
		{"no columns", UpsertConfig{Table: "clients", ConflictKeys: []string{"id"}}, "no columns specified"},
		{"no conflict keys", UpsertConfig{Table: "clients", Columns: []string{"id", "name"}}, "no conflict keys specified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkUpsert(context.Background(), nil, tt.cfg, [][]any{{"1", "a"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := mappingUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_account_mappings"}, cfg.Columns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"acc-1", "c1", "legacy"}, {"acc-2", "c2", "legacy"}}
	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_MergeErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := mappingUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_account_mappings"}, cfg.Columns).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnError(fmt.Errorf("unique violation"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"acc-1", "c1", "legacy"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge into account_mappings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedupeRows(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		rows [][]any
		want [][]any
	}{
		{
			name: "no duplicates",
			cfg:  mappingUpsert(),
			rows: [][]any{{"L1", "c1", "a"}, {"L2", "c2", "a"}},
			want: [][]any{{"L1", "c1", "a"}, {"L2", "c2", "a"}},
		},
		{
			name: "last row wins at first position",
			cfg:  mappingUpsert(),
			rows: [][]any{{"L1", "c1", "a"}, {"L2", "c2", "a"}, {"L1", "c9", "b"}},
			want: [][]any{{"L1", "c9", "b"}, {"L2", "c2", "a"}},
		},
		{
			name: "composite key",
			cfg: UpsertConfig{
				Table: "t", Columns: []string{"a", "b", "v"}, ConflictKeys: []string{"a", "b"},
			},
			rows: [][]any{{"x", 1, "first"}, {"x", 2, "other"}, {"x", 1, "second"}},
			want: [][]any{{"x", 1, "second"}, {"x", 2, "other"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DedupeRows(tt.cfg, tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDedupeRows_UnknownConflictKey(t *testing.T) {
	cfg := UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"code"}}
	_, err := DedupeRows(cfg, [][]any{{"1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `conflict key "code"`)
}

func TestBulkUpsert_DuplicateKeysCopiedOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := mappingUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_account_mappings"}, cfg.Columns).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	rows := [][]any{{"L1", "c1", "legacy"}, {"L1", "c2", "legacy"}}
	n, err := BulkUpsert(context.Background(), mock, cfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "updates non-key columns",
			cfg:  mappingUpsert(),
			want: `INSERT INTO "account_mappings" ("original_id", "client_id", "source") SELECT "original_id", "client_id", "source" FROM "tmp" ON CONFLICT ("original_id") DO UPDATE SET "client_id" = EXCLUDED."client_id", "source" = EXCLUDED."source"`,
		},
		{
			name: "key only does nothing",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}},
			want: `INSERT INTO "t" ("id") SELECT "id" FROM "tmp" ON CONFLICT ("id") DO NOTHING`,
		},
		{
			name: "explicit update columns",
			cfg: UpsertConfig{
				Table: "clients", Columns: []string{"id", "name", "active"},
				ConflictKeys: []string{"id"}, UpdateCols: []string{"active"},
			},
			want: `INSERT INTO "clients" ("id", "name", "active") SELECT "id", "name", "active" FROM "tmp" ON CONFLICT ("id") DO UPDATE SET "active" = EXCLUDED."active"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpsertSQL(tt.cfg, "tmp"))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "cpf"`, quoteAndJoin([]string{"id", "name", "cpf"}))
}
