package sheet

import (
	"strings"

	"github.com/sells-group/crm-cli/internal/matcher"
)

// Field is a logical column recognized in a sheet header.
type Field string

// Recognized fields.
const (
	FieldID             Field = "id"
	FieldName           Field = "name"
	FieldAccountNumber  Field = "account_number"
	FieldCPF            Field = "cpf"
	FieldCNPJ           Field = "cnpj"
	FieldActive         Field = "active"
	FieldOriginalID     Field = "original_id"
	FieldClientID       Field = "client_id"
	FieldSource         Field = "source"
	FieldInstagram      Field = "instagram"
	FieldYouTube        Field = "youtube"
	FieldTikTok         Field = "tiktok"
	FieldTwitter        Field = "twitter"
	FieldTelegram       Field = "telegram"
	FieldOtherReach     Field = "other_reach"
	FieldEngagementRate Field = "engagement_rate"
	FieldNiche          Field = "niche"
	FieldEstimatedCPL   Field = "estimated_cpl"
	FieldQualityRating  Field = "quality_rating"
)

// aliases lists the accepted header spellings per field, already normalized
// by headerKey.
var aliases = map[Field][]string{
	FieldID:             {"id", "codigo", "code", "prospect_id"},
	FieldName:           {"name", "nome", "razao_social", "client_name", "cliente"},
	FieldAccountNumber:  {"account_number", "conta", "account", "numero_conta", "account_ref"},
	FieldCPF:            {"cpf", "tax_id"},
	FieldCNPJ:           {"cnpj"},
	FieldActive:         {"active", "ativo", "status"},
	FieldOriginalID:     {"original_id", "original_account", "conta_original", "legacy_account"},
	FieldClientID:       {"client_id", "cliente_id", "canonical_id"},
	FieldSource:         {"source", "origem"},
	FieldInstagram:      {"instagram", "instagram_followers"},
	FieldYouTube:        {"youtube", "youtube_subscribers"},
	FieldTikTok:         {"tiktok", "tiktok_followers"},
	FieldTwitter:        {"twitter", "twitter_followers", "x", "x_followers"},
	FieldTelegram:       {"telegram", "telegram_members"},
	FieldOtherReach:     {"other_reach", "other", "outros"},
	FieldEngagementRate: {"engagement_rate", "engagement", "engajamento"},
	FieldNiche:          {"niche", "nicho", "category", "categories"},
	FieldEstimatedCPL:   {"estimated_cpl", "cpl", "cost_per_lead"},
	FieldQualityRating:  {"quality_rating", "quality", "qualidade"},
}

// Columns maps fields to their column index in a header.
type Columns map[Field]int

// MapHeader resolves header cells to fields. Matching ignores case, accents
// are not folded, and spaces or hyphens count as underscores. The first
// column claiming a field wins.
func MapHeader(header []string) Columns {
	lookup := make(map[string]Field)
	for f, names := range aliases {
		for _, n := range names {
			lookup[n] = f
		}
	}

	cols := make(Columns)
	for i, h := range header {
		f, ok := lookup[headerKey(h)]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	return cols
}

// Has reports whether any of fields is present.
func (c Columns) Has(fields ...Field) bool {
	for _, f := range fields {
		if _, ok := c[f]; ok {
			return true
		}
	}
	return false
}

// Get returns the trimmed value of f in row, or "" when the column is absent
// or the row is short.
func (c Columns) Get(row []string, f Field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func headerKey(h string) string {
	h = matcher.NormalizeText(h)
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(h)
	return h
}
