package scorer

// Step is one row of a step table: inputs at or above Min score Score.
type Step struct {
	Min   float64
	Score float64
}

// Reach thresholds (total audience across channels).
const (
	Reach1K   = 1_000
	Reach5K   = 5_000
	Reach10K  = 10_000
	Reach20K  = 20_000
	Reach50K  = 50_000
	Reach100K = 100_000
	Reach200K = 200_000
	Reach500K = 500_000
	Reach1M   = 1_000_000

	// ReachFloorScore applies to any positive reach below Reach1K.
	ReachFloorScore = 10
)

// ReachSteps is evaluated top-down.
var ReachSteps = []Step{
	{Reach1M, 100},
	{Reach500K, 90},
	{Reach200K, 80},
	{Reach100K, 70},
	{Reach50K, 60},
	{Reach20K, 50},
	{Reach10K, 40},
	{Reach5K, 30},
	{Reach1K, 20},
}

// Engagement rate thresholds, in percent.
const (
	Engagement1  = 1
	Engagement2  = 2
	Engagement3  = 3
	Engagement5  = 5
	Engagement7  = 7
	Engagement10 = 10

	// EngagementFloorScore applies to any positive rate below Engagement1.
	EngagementFloorScore = 10
)

// EngagementSteps is evaluated top-down.
var EngagementSteps = []Step{
	{Engagement10, 100},
	{Engagement7, 90},
	{Engagement5, 80},
	{Engagement3, 60},
	{Engagement2, 40},
	{Engagement1, 20},
}

// Category fit scores.
const (
	CategoryBothTiers = 100
	CategoryHighOnly  = 80
	CategoryMedOnly   = 60
	CategoryUnmatched = 30
)

// QualityProxyFactor scales the engagement sub-score into the quality proxy.
const QualityProxyFactor = 1.1

// CostCap is one row of the inverse cost table: costs at or below Max score
// Score.
type CostCap struct {
	Max   float64
	Score float64
}

// Cost-per-lead caps.
const (
	Cost5   = 5
	Cost10  = 10
	Cost20  = 20
	Cost50  = 50
	Cost100 = 100

	// CostCeilingScore applies to any cost above Cost100.
	CostCeilingScore = 10
)

// CostSteps is evaluated bottom-up.
var CostSteps = []CostCap{
	{Cost5, 100},
	{Cost10, 90},
	{Cost20, 75},
	{Cost50, 50},
	{Cost100, 30},
}

// stepScore looks v up in a descending step table. Positive values below the
// last row get floor; zero and below get 0.
func stepScore(v float64, steps []Step, floor float64) float64 {
	if !(v > 0) {
		return 0
	}
	for _, s := range steps {
		if v >= s.Min {
			return s.Score
		}
	}
	return floor
}

// capScore looks v up in an ascending cap table. Non-positive values get 0.
func capScore(v float64, caps []CostCap, ceiling float64) float64 {
	if !(v > 0) {
		return 0
	}
	for _, c := range caps {
		if v <= c.Max {
			return c.Score
		}
	}
	return ceiling
}
