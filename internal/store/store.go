// Package store persists clients, account mappings, prospects and match
// records in sqlite or postgres.
package store

import (
	"context"
	"time"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/scorer"
)

// DefaultPageSize bounds list queries that omit a limit.
const DefaultPageSize = 100

// Page selects a window of rows in insertion order.
type Page struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func (p Page) limit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	return p.Limit
}

// AccountMapping links an original account reference to a canonical client.
type AccountMapping struct {
	OriginalID string    `json:"original_id"`
	ClientID   string    `json:"client_id"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MappingKey is the stored form of an original account reference. It matches
// the key MappingTable looks up, so case and spacing variants share one row.
func MappingKey(originalID string) string {
	return matcher.NormalizeText(originalID)
}

// Prospect is a scorable lead with its last computed score.
type Prospect struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes scorer.Attributes `json:"attributes"`
	Score      *float64          `json:"score,omitempty"`
	Breakdown  *scorer.Breakdown `json:"breakdown,omitempty"`
	Passed     bool              `json:"passed"`
	ScoredAt   *time.Time        `json:"scored_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// MatchRecord is one persisted matcher outcome.
type MatchRecord struct {
	ID         string             `json:"id"`
	SourceRef  string             `json:"source_ref"`
	ClientID   string             `json:"client_id,omitempty"`
	Method     matcher.Method     `json:"method,omitempty"`
	Confidence matcher.Confidence `json:"confidence,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// NewMatchRecord builds a record for a match result. Unmatched results keep
// empty client, method and confidence.
func NewMatchRecord(sourceRef string, r matcher.Result) MatchRecord {
	rec := MatchRecord{SourceRef: sourceRef}
	if r.Matched() {
		rec.ClientID = r.Entity.ID
		rec.Method = r.Method
		rec.Confidence = r.Confidence
	}
	return rec
}

// Store defines persistence for the matcher and scorer inputs and outputs.
type Store interface {
	// Clients. Entries without an ID get a new uuid written back into the
	// slice. List order is insertion order so pool tie-breaks stay stable.
	UpsertClients(ctx context.Context, clients []matcher.Candidate) (int, error)
	ListClients(ctx context.Context, page Page) ([]matcher.Candidate, error)
	CountClients(ctx context.Context) (int, error)

	// Account mappings
	UpsertMappings(ctx context.Context, mappings []AccountMapping) (int, error)
	ListMappings(ctx context.Context, page Page) ([]AccountMapping, error)

	// Prospects
	UpsertProspects(ctx context.Context, prospects []Prospect) (int, error)
	ListProspects(ctx context.Context, page Page) ([]Prospect, error)
	UpdateProspectScores(ctx context.Context, scores []scorer.ProspectScore) error

	// Match records
	SaveMatchRecords(ctx context.Context, records []MatchRecord) error
	ListMatchRecords(ctx context.Context, page Page) ([]MatchRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
