// Package matcher resolves free-form client records to canonical clients
// through a prioritized identifier chain.
package matcher

import (
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Method names the tier that produced a match.
type Method string

// Match methods in tier order.
const (
	MethodAccountNumber  Method = "account_number"
	MethodCPF            Method = "cpf"
	MethodCNPJ           Method = "cnpj"
	MethodName           Method = "name"
	MethodAccountMapping Method = "account_mapping"
)

// Confidence is the reliability label attached to a match.
type Confidence string

// Confidence levels. No tier currently yields ConfidenceMedium.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Candidate is an existing client that inputs can resolve to.
type Candidate struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number,omitempty"`
	CPF           string `json:"cpf,omitempty"`
	CNPJ          string `json:"cnpj,omitempty"`
	Active        bool   `json:"active"`
}

// Input holds the identifying fields of a record to resolve. Every field is
// optional.
type Input struct {
	AccountNumber string `json:"account_number,omitempty"`
	CPF           string `json:"cpf,omitempty"`
	CNPJ          string `json:"cnpj,omitempty"`
	Name          string `json:"name,omitempty"`
}

// Result is the outcome of a match. The zero value means no match; Entity,
// Method and Confidence are either all set or all empty.
type Result struct {
	Entity     *Candidate `json:"entity"`
	Method     Method     `json:"method,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Matched reports whether the result resolved to a candidate.
func (r Result) Matched() bool {
	return r.Entity != nil
}

// Match resolves in against candidates, consulting mappings when no tier hits.
// mappings may be nil.
func Match(candidates []Candidate, in Input, mappings MappingTable) Result {
	return NewIndex(candidates).Resolve(in, mappings)
}

// Index holds normalized lookups over one candidate pool. It is read-only
// after NewIndex and safe for concurrent use.
type Index struct {
	candidates []Candidate
	byAccount  map[string][]int
	byCPF      map[string][]int
	byCNPJ     map[string][]int
	byName     map[string][]int
	byID       map[string][]int
}

// NewIndex normalizes every candidate once. Position lists keep pool order.
func NewIndex(candidates []Candidate) *Index {
	idx := &Index{
		candidates: candidates,
		byAccount:  make(map[string][]int),
		byCPF:      make(map[string][]int),
		byCNPJ:     make(map[string][]int),
		byName:     make(map[string][]int),
		byID:       make(map[string][]int),
	}
	for i, c := range candidates {
		addKey(idx.byAccount, NormalizeText(c.AccountNumber), i)
		addKey(idx.byCPF, NormalizeDocument(c.CPF), i)
		addKey(idx.byCNPJ, NormalizeDocument(c.CNPJ), i)
		addKey(idx.byName, NormalizeText(c.Name), i)
		addKey(idx.byID, strings.TrimSpace(c.ID), i)
	}
	return idx
}

func addKey(m map[string][]int, key string, i int) {
	if key != "" {
		m[key] = append(m[key], i)
	}
}

// Len returns the pool size.
func (idx *Index) Len() int {
	return len(idx.candidates)
}

// Resolve runs the tier chain for one input. First hit wins:
//  1. account number (high)
//  2. CPF with at least MinCPFDigits digits (high)
//  3. CNPJ with at least MinCNPJDigits digits (high)
//  4. name (low)
//
// When nothing hits and an account number was given, the mapping table is
// consulted and a hit is reported as account_mapping (high).
func (idx *Index) Resolve(in Input, mappings MappingTable) Result {
	account := NormalizeText(in.AccountNumber)
	if r, ok := idx.pick(idx.byAccount, account, MethodAccountNumber, ConfidenceHigh); ok {
		return r
	}

	if cpf := NormalizeDocument(in.CPF); len(cpf) >= MinCPFDigits {
		if r, ok := idx.pick(idx.byCPF, cpf, MethodCPF, ConfidenceHigh); ok {
			return r
		}
	}

	if cnpj := NormalizeDocument(in.CNPJ); len(cnpj) >= MinCNPJDigits {
		if r, ok := idx.pick(idx.byCNPJ, cnpj, MethodCNPJ, ConfidenceHigh); ok {
			return r
		}
	}

	if r, ok := idx.pick(idx.byName, NormalizeText(in.Name), MethodName, ConfidenceLow); ok {
		return r
	}

	if account != "" {
		if clientID, found := mappings.Lookup(account); found {
			if r, ok := idx.pick(idx.byID, clientID, MethodAccountMapping, ConfidenceHigh); ok {
				return r
			}
		}
	}

	return Result{}
}

// pick applies the tie-break to the hits for key: active candidates first,
// pool order otherwise.
func (idx *Index) pick(m map[string][]int, key string, method Method, conf Confidence) (Result, bool) {
	if key == "" {
		return Result{}, false
	}
	hits := m[key]
	if len(hits) == 0 {
		return Result{}, false
	}

	ordered := slices.Clone(hits)
	slices.SortStableFunc(ordered, func(a, b int) int {
		return activeRank(idx.candidates[a]) - activeRank(idx.candidates[b])
	})

	c := idx.candidates[ordered[0]]
	return Result{Entity: &c, Method: method, Confidence: conf}, true
}

func activeRank(c Candidate) int {
	if c.Active {
		return 0
	}
	return 1
}

// Matcher resolves inputs against a candidate pool with a fixed mapping
// table and logs each resolution.
type Matcher struct {
	mappings MappingTable
	log      *zap.Logger
}

// New creates a Matcher. mappings may be nil.
func New(mappings MappingTable) *Matcher {
	return &Matcher{
		mappings: mappings,
		log:      zap.L().With(zap.String("component", "matcher")),
	}
}

// Match resolves a single input.
func (m *Matcher) Match(candidates []Candidate, in Input) Result {
	return m.resolve(NewIndex(candidates), in)
}

// MatchAll resolves every input against the same pool, normalizing the pool
// once. Results are in input order.
func (m *Matcher) MatchAll(candidates []Candidate, inputs []Input) []Result {
	idx := NewIndex(candidates)
	results := make([]Result, len(inputs))
	matched := 0
	for i, in := range inputs {
		results[i] = m.resolve(idx, in)
		if results[i].Matched() {
			matched++
		}
	}

	m.log.Info("matcher: batch resolved",
		zap.Int("inputs", len(inputs)),
		zap.Int("candidates", idx.Len()),
		zap.Int("matched", matched),
	)
	return results
}

func (m *Matcher) resolve(idx *Index, in Input) Result {
	r := idx.Resolve(in, m.mappings)
	if !r.Matched() {
		m.log.Debug("matcher: no match",
			zap.String("account_number", in.AccountNumber),
			zap.String("name", in.Name),
		)
		return r
	}
	m.log.Debug("matcher: matched by "+string(r.Method),
		zap.String("client_id", r.Entity.ID),
		zap.String("confidence", string(r.Confidence)),
	)
	return r
}

// Summary counts batch results per method.
type Summary struct {
	Total     int            `json:"total"`
	Matched   int            `json:"matched"`
	Unmatched int            `json:"unmatched"`
	ByMethod  map[Method]int `json:"by_method"`
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), ByMethod: make(map[Method]int)}
	for _, r := range results {
		if !r.Matched() {
			s.Unmatched++
			continue
		}
		s.Matched++
		s.ByMethod[r.Method]++
	}
	return s
}
