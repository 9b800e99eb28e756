package sheet

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/matcher"
	"github.com/sells-group/crm-cli/internal/scorer"
	"github.com/sells-group/crm-cli/internal/store"
)

// MatchRow is one spreadsheet row to resolve. Ref identifies the row in the
// source file.
type MatchRow struct {
	Ref   string
	Input matcher.Input
}

// MatchRows converts a table into matcher inputs. Rows with no identifying
// field are skipped.
func MatchRows(t *Table) ([]MatchRow, error) {
	cols := MapHeader(t.Header)
	if !cols.Has(FieldAccountNumber, FieldCPF, FieldCNPJ, FieldName) {
		return nil, eris.New("sheet: header has no account_number, cpf, cnpj or name column")
	}

	log := zap.L().With(zap.String("kind", "match"))
	rows := make([]MatchRow, 0, len(t.Rows))
	for i, row := range t.Rows {
		in := matcher.Input{
			AccountNumber: cols.Get(row, FieldAccountNumber),
			CPF:           cols.Get(row, FieldCPF),
			CNPJ:          cols.Get(row, FieldCNPJ),
			Name:          cols.Get(row, FieldName),
		}
		if in == (matcher.Input{}) {
			log.Debug("sheet: skipping row without identifiers", zap.Int("line", t.Lines[i]))
			continue
		}
		ref := cols.Get(row, FieldID)
		if ref == "" {
			ref = lineRef(t.Lines[i])
		}
		rows = append(rows, MatchRow{Ref: ref, Input: in})
	}
	return rows, nil
}

// Clients converts a table into candidate clients. Rows without a name or
// any identifier are skipped. A missing active column means active.
func Clients(t *Table) ([]matcher.Candidate, error) {
	cols := MapHeader(t.Header)
	if !cols.Has(FieldName, FieldAccountNumber, FieldCPF, FieldCNPJ) {
		return nil, eris.New("sheet: header has no client identifying columns")
	}

	log := zap.L().With(zap.String("kind", "clients"))
	out := make([]matcher.Candidate, 0, len(t.Rows))
	for i, row := range t.Rows {
		c := matcher.Candidate{
			ID:            firstNonEmpty(cols.Get(row, FieldID), cols.Get(row, FieldClientID)),
			Name:          cols.Get(row, FieldName),
			AccountNumber: cols.Get(row, FieldAccountNumber),
			CPF:           cols.Get(row, FieldCPF),
			CNPJ:          cols.Get(row, FieldCNPJ),
			Active:        ParseBool(cols.Get(row, FieldActive), true),
		}
		if c.Name == "" && c.AccountNumber == "" && c.CPF == "" && c.CNPJ == "" {
			log.Warn("sheet: skipping empty client row", zap.Int("line", t.Lines[i]))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Mappings converts a table into account mappings. Both original_id and
// client_id are required per row.
func Mappings(t *Table, source string) ([]store.AccountMapping, error) {
	cols := MapHeader(t.Header)
	if !cols.Has(FieldOriginalID) || !cols.Has(FieldClientID) {
		return nil, eris.New("sheet: mapping header needs original_id and client_id columns")
	}

	log := zap.L().With(zap.String("kind", "mappings"))
	out := make([]store.AccountMapping, 0, len(t.Rows))
	for i, row := range t.Rows {
		m := store.AccountMapping{
			OriginalID: cols.Get(row, FieldOriginalID),
			ClientID:   cols.Get(row, FieldClientID),
			Source:     cols.Get(row, FieldSource),
		}
		if m.OriginalID == "" || m.ClientID == "" {
			log.Warn("sheet: skipping incomplete mapping row", zap.Int("line", t.Lines[i]))
			continue
		}
		if m.Source == "" {
			m.Source = source
		}
		out = append(out, m)
	}
	return out, nil
}

// Prospects converts a table into scorable prospects. ID stays empty when
// the sheet has none. Unparseable numbers are logged and read as zero so the
// row still scores.
func Prospects(t *Table) ([]scorer.Prospect, error) {
	cols := MapHeader(t.Header)
	if !cols.Has(FieldName, FieldID) {
		return nil, eris.New("sheet: prospect header needs a name or id column")
	}

	out := make([]scorer.Prospect, 0, len(t.Rows))
	for i, row := range t.Rows {
		log := zap.L().With(zap.String("kind", "prospects"), zap.Int("line", t.Lines[i]))
		p := scorer.Prospect{
			ID:   cols.Get(row, FieldID),
			Name: cols.Get(row, FieldName),
		}
		if p.ID == "" && p.Name == "" {
			log.Warn("sheet: skipping prospect row without id or name")
			continue
		}

		count := func(f Field) int64 {
			v := cols.Get(row, f)
			n, err := ParseCount(v)
			if err != nil {
				log.Warn("sheet: bad count", zap.String("field", string(f)), zap.String("value", v))
			}
			return n
		}
		number := func(f Field) float64 {
			v := cols.Get(row, f)
			n, err := ParseNumber(v)
			if err != nil {
				log.Warn("sheet: bad number", zap.String("field", string(f)), zap.String("value", v))
			}
			return n
		}

		p.Attributes = scorer.Attributes{
			InstagramFollowers: count(FieldInstagram),
			YouTubeSubscribers: count(FieldYouTube),
			TikTokFollowers:    count(FieldTikTok),
			TwitterFollowers:   count(FieldTwitter),
			TelegramMembers:    count(FieldTelegram),
			OtherReach:         count(FieldOtherReach),
			EngagementRate:     number(FieldEngagementRate),
			Niche:              SplitTags(cols.Get(row, FieldNiche)),
			EstimatedCPL:       number(FieldEstimatedCPL),
		}
		if v := cols.Get(row, FieldQualityRating); v != "" {
			if q, err := ParseNumber(v); err == nil {
				p.Attributes.QualityRating = &q
			} else {
				log.Warn("sheet: bad quality rating", zap.String("value", v))
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func lineRef(line int) string {
	return fmt.Sprintf("row-%d", line)
}

// ParseBool reads yes/no style flags in English and Portuguese. Empty or
// unrecognized values return def.
func ParseBool(s string, def bool) bool {
	switch matcher.NormalizeText(s) {
	case "1", "true", "t", "yes", "y", "sim", "s", "active", "ativo":
		return true
	case "0", "false", "f", "no", "n", "nao", "não", "inactive", "inativo":
		return false
	default:
		return def
	}
}

// countSuffixes lists multiplier suffixes, longest first so "mil" is not
// read as "m".
var countSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"mil", 1e3},
	{"mm", 1e6},
	{"mi", 1e6},
	{"k", 1e3},
	{"m", 1e6},
}

var (
	plainCount   = regexp.MustCompile(`^\d+$`)
	groupedCount = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
	scaledCount  = regexp.MustCompile(`^\d+([.,]\d+)?$`)
)

// ParseCount reads an audience count such as "600000", "600,000",
// "600.000", "1.2k", "3M", "10 mil" or "2,5 mi". Separators without a
// suffix must group thousands; "1.5" and negative counts are errors. Empty
// input is 0.
func ParseCount(s string) (int64, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	mult := 1.0
	for _, cs := range countSuffixes {
		if strings.HasSuffix(s, cs.suffix) {
			mult, s = cs.mult, strings.TrimSpace(strings.TrimSuffix(s, cs.suffix))
			break
		}
	}

	if mult == 1 {
		switch {
		case plainCount.MatchString(s):
		case groupedCount.MatchString(s):
			s = strings.NewReplacer(".", "", ",", "").Replace(s)
		default:
			return 0, eris.Errorf("sheet: invalid count %q", raw)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "sheet: invalid count %q", raw)
		}
		return n, nil
	}

	if !scaledCount.MatchString(s) {
		return 0, eris.Errorf("sheet: invalid count %q", raw)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "sheet: invalid count %q", raw)
	}
	return int64(math.Round(f * mult)), nil
}

// ParseNumber reads a decimal that may carry a currency prefix, a percent
// sign or a comma decimal separator. Empty input is 0.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "sheet: invalid number %q", s)
	}
	return f, nil
}

// SplitTags splits a niche cell on commas, semicolons or pipes.
func SplitTags(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
