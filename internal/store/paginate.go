package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/resilience"
)

// PageFunc fetches one page of rows.
type PageFunc[T any] func(ctx context.Context, page Page) ([]T, error)

// FetchAll walks fetch page by page until a short page, retrying each page
// on transient errors.
func FetchAll[T any](ctx context.Context, pageSize int, policy resilience.Policy, fetch PageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	for offset := 0; ; offset += pageSize {
		page := Page{Limit: pageSize, Offset: offset}
		rows, err := resilience.DoVal(ctx, policy, func(ctx context.Context) ([]T, error) {
			return fetch(ctx, page)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "store: fetch page at offset %d", offset)
		}
		all = append(all, rows...)
		if len(rows) < pageSize {
			break
		}
	}
	return all, nil
}

// AllClients loads the full client pool in insertion order. An empty table
// skips paging. A count that disagrees with the paged rows is logged.
func AllClients(ctx context.Context, s Store, pageSize int, policy resilience.Policy) ([]matcher.Candidate, error) {
	total, err := resilience.DoVal(ctx, policy.WithLogging("store.count_clients"), s.CountClients)
	if err != nil {
		return nil, eris.Wrap(err, "store: count client pool")
	}
	if total == 0 {
		zap.L().Warn("store: client pool is empty")
		return nil, nil
	}

	clients, err := FetchAll(ctx, pageSize, policy.WithLogging("store.list_clients"), s.ListClients)
	if err != nil {
		return nil, eris.Wrap(err, "store: load client pool")
	}
	if len(clients) != total {
		zap.L().Warn("store: client pool changed while paging",
			zap.Int("counted", total),
			zap.Int("loaded", len(clients)),
		)
	}
	zap.L().Debug("store: loaded client pool", zap.Int("clients", len(clients)))
	return clients, nil
}

// AllProspects loads every stored prospect.
func AllProspects(ctx context.Context, s Store, pageSize int, policy resilience.Policy) ([]Prospect, error) {
	prospects, err := FetchAll(ctx, pageSize, policy.WithLogging("store.list_prospects"), s.ListProspects)
	if err != nil {
		return nil, eris.Wrap(err, "store: load prospects")
	}
	return prospects, nil
}

// LoadMappingTable builds a matcher mapping table from every stored mapping.
func LoadMappingTable(ctx context.Context, s Store, pageSize int, policy resilience.Policy) (matcher.MappingTable, error) {
	mappings, err := FetchAll(ctx, pageSize, policy.WithLogging("store.list_mappings"), s.ListMappings)
	if err != nil {
		return nil, eris.Wrap(err, "store: load mapping table")
	}
	table := make(matcher.MappingTable, len(mappings))
	for _, m := range mappings {
		table.Add(m.OriginalID, m.ClientID)
	}
	return table, nil
}
