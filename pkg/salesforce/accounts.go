package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/resilience"
)

// DefaultPageSize is the number of accounts requested per SOQL query.
const DefaultPageSize = 2000

// Account is the subset of a Salesforce Account used for matching. CPF__c,
// CNPJ__c and Active__c are custom fields.
type Account struct {
	ID            string `json:"Id" salesforce:"Id"`
	Name          string `json:"Name" salesforce:"Name"`
	AccountNumber string `json:"AccountNumber" salesforce:"AccountNumber"`
	CPF           string `json:"CPF__c" salesforce:"CPF__c"`
	CNPJ          string `json:"CNPJ__c" salesforce:"CNPJ__c"`
	Active        bool   `json:"Active__c" salesforce:"Active__c"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{"Id", "Name", "AccountNumber", "CPF__c", "CNPJ__c", "Active__c"}

// customFields must exist on the org's Account object.
var customFields = []string{"CPF__c", "CNPJ__c", "Active__c"}

// Candidate converts the account into a matcher candidate.
func (a Account) Candidate() matcher.Candidate {
	return matcher.Candidate{
		ID:            a.ID,
		Name:          a.Name,
		AccountNumber: a.AccountNumber,
		CPF:           a.CPF,
		CNPJ:          a.CNPJ,
		Active:        a.Active,
	}
}

// accountPageSOQL builds a keyset page query: accounts with Id greater than
// afterID, ordered by Id.
func accountPageSOQL(afterID string, limit int) string {
	var where string
	if afterID != "" {
		where = fmt.Sprintf(" WHERE Id > '%s'", escapeSoql(afterID))
	}
	return fmt.Sprintf(
		"SELECT %s FROM Account%s ORDER BY Id LIMIT %d",
		strings.Join(accountFields, ", "), where, limit,
	)
}

// ListAccountsPage fetches up to limit accounts after afterID.
func ListAccountsPage(ctx context.Context, c Client, afterID string, limit int) ([]Account, error) {
	var accounts []Account
	if err := c.Query(ctx, accountPageSOQL(afterID, limit), &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: list accounts after %q", afterID))
	}
	return accounts, nil
}

// ListAccounts loads every account as a matcher candidate, ordered by Id.
// Each page is retried on transient errors.
func ListAccounts(ctx context.Context, c Client, pageSize int, policy resilience.Policy) ([]matcher.Candidate, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	policy = policy.WithLogging("sf.list_accounts")

	var (
		out     []matcher.Candidate
		afterID string
		pages   int
	)
	for {
		accounts, err := resilience.DoVal(ctx, policy, func(ctx context.Context) ([]Account, error) {
			return ListAccountsPage(ctx, c, afterID, pageSize)
		})
		if err != nil {
			return nil, eris.Wrap(err, "sf: load account pool")
		}
		pages++
		for _, a := range accounts {
			out = append(out, a.Candidate())
		}
		if len(accounts) < pageSize {
			break
		}
		afterID = accounts[len(accounts)-1].ID
	}

	zap.L().Info("sf: loaded account pool",
		zap.Int("accounts", len(out)),
		zap.Int("pages", pages),
	)
	return out, nil
}

// CheckAccountFields verifies that the custom fields used for matching exist
// on Account.
func CheckAccountFields(ctx context.Context, c Client) error {
	desc, err := c.DescribeSObject(ctx, "Account")
	if err != nil {
		return eris.Wrap(err, "sf: check account fields")
	}

	have := make(map[string]bool, len(desc.Fields))
	for _, f := range desc.Fields {
		have[f.Name] = true
	}

	var missing []string
	for _, f := range customFields {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("sf: Account is missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
