package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/resilience"
	"github.com/sells-group/crm-cli/internal/store"
	sfpkg "github.com/sells-group/crm-cli/pkg/salesforce"
)

// Candidate pool sources.
const (
	sourceStore      = "store"
	sourceSalesforce = "salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initSalesforce(ctx context.Context) (sfpkg.Client, error) {
	if err := cfg.Validate(sourceSalesforce); err != nil {
		return nil, err
	}
	client, err := sfpkg.Connect(cfg.Salesforce)
	if err != nil {
		return nil, err
	}
	if err := sfpkg.CheckAccountFields(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func retryPolicy() resilience.Policy {
	return resilience.FromConfig(cfg.Retry)
}

// loadPool fetches the full candidate pool and the mapping table. Mappings
// always come from the store.
func loadPool(ctx context.Context, st store.Store, source string) ([]matcher.Candidate, matcher.MappingTable, error) {
	policy := retryPolicy()

	var (
		pool []matcher.Candidate
		err  error
	)
	switch source {
	case "", sourceStore:
		pool, err = store.AllClients(ctx, st, cfg.Matcher.PageSize, policy)
	case sourceSalesforce:
		client, cerr := initSalesforce(ctx)
		if cerr != nil {
			return nil, nil, cerr
		}
		pool, err = sfpkg.ListAccounts(ctx, client, cfg.Matcher.PageSize, policy)
	default:
		return nil, nil, eris.Errorf("unknown candidate source %q (want store or salesforce)", source)
	}
	if err != nil {
		return nil, nil, err
	}

	mappings, err := store.LoadMappingTable(ctx, st, cfg.Matcher.PageSize, policy)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("candidate pool loaded",
		zap.String("source", source),
		zap.Int("candidates", len(pool)),
		zap.Int("mappings", len(mappings)),
	)
	return pool, mappings, nil
}
