package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-cli/internal/db"
	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/scorer"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to connString and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, 10)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for score history writes.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS clients (
	seq            BIGSERIAL,
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name           TEXT NOT NULL DEFAULT '',
	account_number TEXT NOT NULL DEFAULT '',
	cpf            TEXT NOT NULL DEFAULT '',
	cnpj           TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT true,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS account_mappings (
	seq         BIGSERIAL,
	original_id TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prospects (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL DEFAULT '',
	attributes JSONB NOT NULL DEFAULT '{}',
	score      DOUBLE PRECISION,
	breakdown  JSONB,
	passed     BOOLEAN NOT NULL DEFAULT false,
	scored_at  TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prospect_scores (
	id          BIGSERIAL PRIMARY KEY,
	prospect_id TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	breakdown   JSONB NOT NULL,
	passed      BOOLEAN NOT NULL,
	config_hash TEXT NOT NULL DEFAULT '',
	scored_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_records (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	source_ref TEXT NOT NULL,
	client_id  TEXT NOT NULL DEFAULT '',
	method     TEXT NOT NULL DEFAULT '',
	confidence TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clients_seq ON clients(seq);
CREATE INDEX IF NOT EXISTS idx_clients_account_number ON clients(lower(account_number));
CREATE INDEX IF NOT EXISTS idx_prospects_seq ON prospects(seq);
CREATE INDEX IF NOT EXISTS idx_prospect_scores_prospect ON prospect_scores(prospect_id, scored_at DESC);
CREATE INDEX IF NOT EXISTS idx_match_records_client_id ON match_records(client_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var (
	clientUpsert = db.UpsertConfig{
		Table:        "clients",
		Columns:      []string{"id", "name", "account_number", "cpf", "cnpj", "active", "updated_at"},
		ConflictKeys: []string{"id"},
	}
	mappingUpsert = db.UpsertConfig{
		Table:        "account_mappings",
		Columns:      []string{"original_id", "client_id", "source"},
		ConflictKeys: []string{"original_id"},
	}
	prospectUpsert = db.UpsertConfig{
		Table:        "prospects",
		Columns:      []string{"id", "name", "attributes"},
		ConflictKeys: []string{"id"},
	}
	matchRecordColumns = []string{"id", "source_ref", "client_id", "method", "confidence", "created_at"}
)

func (s *PostgresStore) UpsertClients(ctx context.Context, clients []matcher.Candidate) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(clients))
	for i := range clients {
		c := &clients[i]
		if strings.TrimSpace(c.ID) == "" {
			c.ID = uuid.New().String()
		}
		rows = append(rows, []any{c.ID, c.Name, c.AccountNumber, c.CPF, c.CNPJ, c.Active, now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, clientUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert clients")
	}
	return int(n), nil
}

func (s *PostgresStore) ListClients(ctx context.Context, page Page) ([]matcher.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, account_number, cpf, cnpj, active FROM clients ORDER BY seq LIMIT $1 OFFSET $2`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clients")
	}
	defer rows.Close()

	var clients []matcher.Candidate
	for rows.Next() {
		var c matcher.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.AccountNumber, &c.CPF, &c.CNPJ, &c.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan client")
		}
		clients = append(clients, c)
	}
	return clients, eris.Wrap(rows.Err(), "postgres: list clients iterate")
}

func (s *PostgresStore) CountClients(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count clients")
}

func (s *PostgresStore) UpsertMappings(ctx context.Context, mappings []AccountMapping) (int, error) {
	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []any{MappingKey(m.OriginalID), m.ClientID, m.Source})
	}
	n, err := db.BulkUpsert(ctx, s.pool, mappingUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert mappings")
	}
	return int(n), nil
}

func (s *PostgresStore) ListMappings(ctx context.Context, page Page) ([]AccountMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT original_id, client_id, source, created_at FROM account_mappings ORDER BY seq LIMIT $1 OFFSET $2`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	defer rows.Close()

	var mappings []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.OriginalID, &m.ClientID, &m.Source, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "postgres: list mappings iterate")
}

func (s *PostgresStore) UpsertProspects(ctx context.Context, prospects []Prospect) (int, error) {
	rows := make([][]any, 0, len(prospects))
	for i := range prospects {
		p := &prospects[i]
		if strings.TrimSpace(p.ID) == "" {
			p.ID = uuid.New().String()
		}
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal attributes for %s", p.ID)
		}
		rows = append(rows, []any{p.ID, p.Name, string(attrs)})
	}
	n, err := db.BulkUpsert(ctx, s.pool, prospectUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert prospects")
	}
	return int(n), nil
}

func (s *PostgresStore) ListProspects(ctx context.Context, page Page) ([]Prospect, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, attributes, score, breakdown, passed, scored_at, created_at
		FROM prospects ORDER BY seq LIMIT $1 OFFSET $2`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	defer rows.Close()

	var prospects []Prospect
	for rows.Next() {
		var (
			p         Prospect
			attrs     []byte
			breakdown []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &attrs, &p.Score, &breakdown, &p.Passed, &p.ScoredAt, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal attributes for %s", p.ID)
			}
		}
		if len(breakdown) > 0 {
			var b scorer.Breakdown
			if err := json.Unmarshal(breakdown, &b); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal breakdown for %s", p.ID)
			}
			p.Breakdown = &b
		}
		prospects = append(prospects, p)
	}
	return prospects, eris.Wrap(rows.Err(), "postgres: list prospects iterate")
}

func (s *PostgresStore) UpdateProspectScores(ctx context.Context, scores []scorer.ProspectScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update scores")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, ps := range scores {
		breakdown, err := json.Marshal(ps.Breakdown)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal breakdown for %s", ps.ID)
		}
		tag, err := tx.Exec(ctx,
			`UPDATE prospects SET score = $1, breakdown = $2, passed = $3, scored_at = now() WHERE id = $4`,
			ps.Score, breakdown, ps.Passed, ps.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update score for %s", ps.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("prospect not found: %s", ps.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit update scores")
}

func (s *PostgresStore) SaveMatchRecords(ctx context.Context, records []MatchRecord) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.CreatedAt = now
		rows = append(rows, []any{r.ID, r.SourceRef, r.ClientID, string(r.Method), string(r.Confidence), now})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "match_records", matchRecordColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: save match records")
	}
	return nil
}

func (s *PostgresStore) ListMatchRecords(ctx context.Context, page Page) ([]MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_ref, client_id, method, confidence, created_at FROM match_records ORDER BY seq LIMIT $1 OFFSET $2`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list match records")
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		var r MatchRecord
		var method, confidence string
		if err := rows.Scan(&r.ID, &r.SourceRef, &r.ClientID, &method, &confidence, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match record")
		}
		r.Method = matcher.Method(method)
		r.Confidence = matcher.Confidence(confidence)
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list match records iterate")
}
