package scorer

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crm-cli/internal/config"
)

// weightTolerance allows for float drift when weights are edited by hand.
const weightTolerance = 0.01

// DefaultScorerConfig returns the standard qualification profile.
// Weights sum to 1.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		ReachWeight:      0.30,
		EngagementWeight: 0.25,
		CategoryWeight:   0.20,
		QualityWeight:    0.15,
		CostWeight:       0.10,

		HighValueCategories:   slices.Clone(config.DefaultHighValueCategories),
		MediumValueCategories: slices.Clone(config.DefaultMediumValueCategories),

		MinScore:    60,
		Concurrency: 8,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.ReachWeight + c.EngagementWeight + c.CategoryWeight + c.QualityWeight + c.CostWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	weights := []struct {
		name string
		w    float64
	}{
		{"reach_weight", c.ReachWeight},
		{"engagement_weight", c.EngagementWeight},
		{"category_weight", c.CategoryWeight},
		{"quality_weight", c.QualityWeight},
		{"cost_weight", c.CostWeight},
	}
	for _, w := range weights {
		if w.w < 0 || math.IsNaN(w.w) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}

	if sum := WeightSum(c); math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}

	if c.MinScore < 0 || c.MinScore > 100 {
		errs = append(errs, "min_score must be between 0 and 100")
	}
	if c.MaxProspects < 0 {
		errs = append(errs, "max_prospects must be >= 0")
	}

	for _, t := range c.HighValueCategories {
		if slices.Contains(c.MediumValueCategories, t) {
			errs = append(errs, fmt.Sprintf("category %q is in both tiers", t))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadProfile reads a YAML scoring profile and overlays it on base. Keys
// missing from the file keep base's values; lists are replaced whole.
func LoadProfile(path string, base config.ScorerConfig) (config.ScorerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "scorer: read profile %s", path)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, eris.Wrapf(err, "scorer: parse profile %s", path)
	}

	if err := ValidateConfig(cfg); err != nil {
		return base, err
	}
	cfg.ProfilePath = path
	return cfg, nil
}
