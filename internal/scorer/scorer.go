// Package scorer computes prospect qualification scores from weighted
// sub-scores and ranks prospects in batches.
package scorer

import (
	"math"
	"strings"

	"github.com/sells-group/crm-cli/internal/config"
)

// Attributes is the snapshot of signals a prospect is scored on. Missing
// values are zero and contribute nothing.
type Attributes struct {
	InstagramFollowers int64    `json:"instagram_followers,omitempty" yaml:"instagram_followers"`
	YouTubeSubscribers int64    `json:"youtube_subscribers,omitempty" yaml:"youtube_subscribers"`
	TikTokFollowers    int64    `json:"tiktok_followers,omitempty" yaml:"tiktok_followers"`
	TwitterFollowers   int64    `json:"twitter_followers,omitempty" yaml:"twitter_followers"`
	TelegramMembers    int64    `json:"telegram_members,omitempty" yaml:"telegram_members"`
	OtherReach         int64    `json:"other_reach,omitempty" yaml:"other_reach"`
	EngagementRate     float64  `json:"engagement_rate,omitempty" yaml:"engagement_rate"` // percent
	Niche              []string `json:"niche,omitempty" yaml:"niche"`
	EstimatedCPL       float64  `json:"estimated_cpl,omitempty" yaml:"estimated_cpl"`
	QualityRating      *float64 `json:"quality_rating,omitempty" yaml:"quality_rating"`
}

// TotalReach sums every channel. Negative counts are treated as 0 and the
// sum saturates at math.MaxInt64.
func (a Attributes) TotalReach() int64 {
	var total int64
	for _, n := range []int64{
		a.InstagramFollowers, a.YouTubeSubscribers, a.TikTokFollowers,
		a.TwitterFollowers, a.TelegramMembers, a.OtherReach,
	} {
		if n <= 0 {
			continue
		}
		if n > math.MaxInt64-total {
			return math.MaxInt64
		}
		total += n
	}
	return total
}

// Breakdown holds the five sub-scores, each 0..100.
type Breakdown struct {
	Reach       float64 `json:"reach"`
	Engagement  float64 `json:"engagement"`
	CategoryFit float64 `json:"category_fit"`
	Quality     float64 `json:"quality"`
	Cost        float64 `json:"cost"`
}

// Result is a computed score with its breakdown.
type Result struct {
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithQualityRater replaces the default ProxyQuality rater.
func WithQualityRater(q QualityRater) Option {
	return func(s *Scorer) {
		if q != nil {
			s.quality = q
		}
	}
}

// Scorer computes qualification scores. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	cfg     config.ScorerConfig
	high    map[string]bool
	medium  map[string]bool
	quality QualityRater
}

// New creates a Scorer from cfg.
func New(cfg config.ScorerConfig, opts ...Option) *Scorer {
	s := &Scorer{
		cfg:     cfg,
		high:    categorySet(cfg.HighValueCategories),
		medium:  categorySet(cfg.MediumValueCategories),
		quality: ProxyQuality{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() config.ScorerConfig {
	return s.cfg
}

// Score computes the final score for a.
func (s *Scorer) Score(a Attributes) Result {
	engagement := scoreEngagement(a.EngagementRate)
	b := Breakdown{
		Reach:       scoreReach(a.TotalReach()),
		Engagement:  engagement,
		CategoryFit: s.scoreCategoryFit(a.Niche),
		Quality:     clamp(s.quality.Rate(a, engagement), 0, 100),
		Cost:        scoreCost(a.EstimatedCPL),
	}

	total := b.Reach*s.cfg.ReachWeight +
		b.Engagement*s.cfg.EngagementWeight +
		b.CategoryFit*s.cfg.CategoryWeight +
		b.Quality*s.cfg.QualityWeight +
		b.Cost*s.cfg.CostWeight

	return Result{Score: round2(clamp(total, 0, 100)), Breakdown: b}
}

// Score computes a score with DefaultScorerConfig and ProxyQuality.
func Score(a Attributes) float64 {
	return New(DefaultScorerConfig()).Score(a).Score
}

func scoreReach(total int64) float64 {
	return stepScore(float64(total), ReachSteps, ReachFloorScore)
}

func scoreEngagement(rate float64) float64 {
	return stepScore(rate, EngagementSteps, EngagementFloorScore)
}

func scoreCost(cpl float64) float64 {
	return capScore(cpl, CostSteps, CostCeilingScore)
}

func (s *Scorer) scoreCategoryFit(niche []string) float64 {
	var tagged, high, medium bool
	for _, tag := range niche {
		t := normalizeTag(tag)
		if t == "" {
			continue
		}
		tagged = true
		if s.high[t] {
			high = true
		}
		if s.medium[t] {
			medium = true
		}
	}

	switch {
	case high && medium:
		return CategoryBothTiers
	case high:
		return CategoryHighOnly
	case medium:
		return CategoryMedOnly
	case tagged:
		return CategoryUnmatched
	default:
		return 0
	}
}

func categorySet(tags []string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		if n := normalizeTag(t); n != "" {
			m[n] = true
		}
	}
	return m
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
