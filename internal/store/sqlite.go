package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/scorer"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clients (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	id             TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL DEFAULT '',
	account_number TEXT NOT NULL DEFAULT '',
	cpf            TEXT NOT NULL DEFAULT '',
	cnpj           TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS account_mappings (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	original_id TEXT NOT NULL UNIQUE,
	client_id   TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS prospects (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	score      REAL,
	breakdown  TEXT,
	passed     INTEGER NOT NULL DEFAULT 0,
	scored_at  DATETIME,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS match_records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	source_ref TEXT NOT NULL,
	client_id  TEXT NOT NULL DEFAULT '',
	method     TEXT NOT NULL DEFAULT '',
	confidence TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clients_account_number ON clients(account_number);
CREATE INDEX IF NOT EXISTS idx_prospects_score ON prospects(score);
CREATE INDEX IF NOT EXISTS idx_match_records_client_id ON match_records(client_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, action string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", action)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", action)
}

func (s *SQLiteStore) UpsertClients(ctx context.Context, clients []matcher.Candidate) (int, error) {
	if len(clients) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	err := s.withTx(ctx, "upsert clients", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO clients (id, name, account_number, cpf, cnpj, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				account_number = excluded.account_number,
				cpf = excluded.cpf,
				cnpj = excluded.cnpj,
				active = excluded.active,
				updated_at = excluded.updated_at`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare upsert client")
		}
		defer stmt.Close() //nolint:errcheck

		for i := range clients {
			c := &clients[i]
			if strings.TrimSpace(c.ID) == "" {
				c.ID = uuid.New().String()
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.AccountNumber, c.CPF, c.CNPJ, c.Active, now, now); err != nil {
				return eris.Wrapf(err, "sqlite: upsert client %s", c.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(clients), nil
}

func (s *SQLiteStore) ListClients(ctx context.Context, page Page) ([]matcher.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, account_number, cpf, cnpj, active FROM clients ORDER BY seq LIMIT ? OFFSET ?`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clients")
	}
	defer rows.Close()

	var clients []matcher.Candidate
	for rows.Next() {
		var c matcher.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.AccountNumber, &c.CPF, &c.CNPJ, &c.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan client")
		}
		clients = append(clients, c)
	}
	return clients, eris.Wrap(rows.Err(), "sqlite: list clients iterate")
}

func (s *SQLiteStore) CountClients(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count clients")
}

func (s *SQLiteStore) UpsertMappings(ctx context.Context, mappings []AccountMapping) (int, error) {
	if len(mappings) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	err := s.withTx(ctx, "upsert mappings", func(tx *sql.Tx) error {
		for _, m := range mappings {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO account_mappings (original_id, client_id, source, created_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(original_id) DO UPDATE SET
					client_id = excluded.client_id,
					source = excluded.source`,
				MappingKey(m.OriginalID), m.ClientID, m.Source, now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert mapping %s", m.OriginalID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(mappings), nil
}

func (s *SQLiteStore) ListMappings(ctx context.Context, page Page) ([]AccountMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT original_id, client_id, source, created_at FROM account_mappings ORDER BY seq LIMIT ? OFFSET ?`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	var mappings []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.OriginalID, &m.ClientID, &m.Source, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "sqlite: list mappings iterate")
}

func (s *SQLiteStore) UpsertProspects(ctx context.Context, prospects []Prospect) (int, error) {
	if len(prospects) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	err := s.withTx(ctx, "upsert prospects", func(tx *sql.Tx) error {
		for i := range prospects {
			p := &prospects[i]
			if strings.TrimSpace(p.ID) == "" {
				p.ID = uuid.New().String()
			}
			attrs, err := json.Marshal(p.Attributes)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal attributes for %s", p.ID)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO prospects (id, name, attributes, created_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					attributes = excluded.attributes`,
				p.ID, p.Name, string(attrs), now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert prospect %s", p.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(prospects), nil
}

func (s *SQLiteStore) ListProspects(ctx context.Context, page Page) ([]Prospect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, attributes, score, breakdown, passed, scored_at, created_at
		FROM prospects ORDER BY seq LIMIT ? OFFSET ?`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	defer rows.Close()

	var prospects []Prospect
	for rows.Next() {
		var (
			p         Prospect
			attrs     string
			score     sql.NullFloat64
			breakdown sql.NullString
			scoredAt  sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Name, &attrs, &score, &breakdown, &p.Passed, &scoredAt, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prospect")
		}
		if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal attributes for %s", p.ID)
		}
		if score.Valid {
			p.Score = &score.Float64
		}
		if breakdown.Valid && breakdown.String != "" {
			var b scorer.Breakdown
			if err := json.Unmarshal([]byte(breakdown.String), &b); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal breakdown for %s", p.ID)
			}
			p.Breakdown = &b
		}
		if scoredAt.Valid {
			p.ScoredAt = &scoredAt.Time
		}
		prospects = append(prospects, p)
	}
	return prospects, eris.Wrap(rows.Err(), "sqlite: list prospects iterate")
}

func (s *SQLiteStore) UpdateProspectScores(ctx context.Context, scores []scorer.ProspectScore) error {
	if len(scores) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.withTx(ctx, "update prospect scores", func(tx *sql.Tx) error {
		for _, ps := range scores {
			breakdown, err := json.Marshal(ps.Breakdown)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal breakdown for %s", ps.ID)
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE prospects SET score = ?, breakdown = ?, passed = ?, scored_at = ? WHERE id = ?`,
				ps.Score, string(breakdown), ps.Passed, now, ps.ID,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: update score for %s", ps.ID)
			}
			if err := checkRowsAffected(res, "prospect", ps.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SaveMatchRecords(ctx context.Context, records []MatchRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.withTx(ctx, "save match records", func(tx *sql.Tx) error {
		for i := range records {
			r := &records[i]
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			r.CreatedAt = now
			_, err := tx.ExecContext(ctx,
				`INSERT INTO match_records (id, source_ref, client_id, method, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				r.ID, r.SourceRef, r.ClientID, string(r.Method), string(r.Confidence), now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert match record %s", r.SourceRef)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListMatchRecords(ctx context.Context, page Page) ([]MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_ref, client_id, method, confidence, created_at FROM match_records ORDER BY seq LIMIT ? OFFSET ?`,
		page.limit(), page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list match records")
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		var r MatchRecord
		var method, confidence string
		if err := rows.Scan(&r.ID, &r.SourceRef, &r.ClientID, &method, &confidence, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match record")
		}
		r.Method = matcher.Method(method)
		r.Confidence = matcher.Confidence(confidence)
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list match records iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
