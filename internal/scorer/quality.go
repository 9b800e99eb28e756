package scorer

import "math"

// QualityRater produces the quality sub-score. engagement is the already
// computed engagement sub-score. Implementations must return 0..100.
type QualityRater interface {
	Rate(a Attributes, engagement float64) float64
}

// ProxyQuality derives quality from engagement until a real rating exists.
type ProxyQuality struct{}

// Rate returns min(engagement * QualityProxyFactor, 100).
func (ProxyQuality) Rate(_ Attributes, engagement float64) float64 {
	return clamp(engagement*QualityProxyFactor, 0, 100)
}

// ManualQuality uses Attributes.QualityRating when set and falls back
// otherwise. A nil Fallback means ProxyQuality.
type ManualQuality struct {
	Fallback QualityRater
}

// Rate implements QualityRater.
func (m ManualQuality) Rate(a Attributes, engagement float64) float64 {
	if a.QualityRating != nil && !math.IsNaN(*a.QualityRating) {
		return clamp(*a.QualityRating, 0, 100)
	}
	if m.Fallback != nil {
		return m.Fallback.Rate(a, engagement)
	}
	return ProxyQuality{}.Rate(a, engagement)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
