package scorer

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prospect is a named attribute snapshot to rank.
type Prospect struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Attributes Attributes `json:"attributes"`
}

// ProspectScore is the scored form of a Prospect.
type ProspectScore struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	Passed    bool      `json:"passed"`
}

// ScoreAll scores prospects with at most concurrency workers and returns them
// sorted by score descending. Ties keep input order. Passed is set when the
// score reaches the scorer's MinScore. When MaxProspects is set the result
// is truncated to that many entries.
func ScoreAll(ctx context.Context, s *Scorer, prospects []Prospect, concurrency int) ([]ProspectScore, error) {
	if len(prospects) == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]ProspectScore, len(prospects))
	var passed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, p := range prospects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := s.Score(p.Attributes)
			ps := ProspectScore{
				ID:        p.ID,
				Name:      p.Name,
				Score:     r.Score,
				Breakdown: r.Breakdown,
				Passed:    r.Score >= s.cfg.MinScore,
			}
			if ps.Passed {
				passed.Add(1)
			}
			results[i] = ps
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "scorer: batch scoring")
	}

	SortByScore(results)

	if limit := s.cfg.MaxProspects; limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	zap.L().Info("scorer: batch scoring complete",
		zap.Int("prospects_scored", len(prospects)),
		zap.Int64("prospects_passed", passed.Load()),
		zap.Int("concurrency", concurrency),
	)
	return results, nil
}

// SortByScore sorts scores descending, keeping the order of equal scores.
func SortByScore(scores []ProspectScore) {
	slices.SortStableFunc(scores, func(a, b ProspectScore) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
}

// CountPassed returns how many scores passed the threshold.
func CountPassed(scores []ProspectScore) int {
	n := 0
	for i := range scores {
		if scores[i].Passed {
			n++
		}
	}
	return n
}
