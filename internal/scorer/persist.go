package scorer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/db"
)

// SaveScores appends scoring results to prospect_scores in one transaction.
func SaveScores(ctx context.Context, pool db.Pool, scores []ProspectScore, configHash string) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "scorer: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, s := range scores {
		breakdown, err := json.Marshal(s.Breakdown)
		if err != nil {
			return eris.Wrapf(err, "scorer: marshal breakdown for prospect %s", s.ID)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO prospect_scores
				(prospect_id, score, breakdown, passed, config_hash)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, s.Score, breakdown, s.Passed, configHash)
		if err != nil {
			return eris.Wrapf(err, "scorer: insert score for prospect %s", s.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "scorer: commit scores")
	}

	zap.L().Info("scorer: saved scores",
		zap.Int("count", len(scores)),
		zap.String("config_hash", configHash),
	)
	return nil
}

// LoadLatestScores returns the newest score per prospect at or above
// minScore, highest first.
func LoadLatestScores(ctx context.Context, pool db.Pool, minScore float64) ([]ProspectScore, error) {
	rows, err := pool.Query(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (prospect_id)
				prospect_id, score, breakdown, passed
			FROM prospect_scores
			ORDER BY prospect_id, scored_at DESC
		)
		SELECT l.prospect_id, COALESCE(p.name, ''), l.score, l.breakdown, l.passed
		FROM latest l
		LEFT JOIN prospects p ON p.id = l.prospect_id
		WHERE l.score >= $1
		ORDER BY l.score DESC
	`, minScore)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: query latest scores")
	}
	defer rows.Close()

	var results []ProspectScore
	for rows.Next() {
		var ps ProspectScore
		var breakdownJSON []byte
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.Score, &breakdownJSON, &ps.Passed); err != nil {
			return nil, eris.Wrap(err, "scorer: scan latest score")
		}
		if len(breakdownJSON) > 0 {
			if err := json.Unmarshal(breakdownJSON, &ps.Breakdown); err != nil {
				return nil, eris.Wrapf(err, "scorer: unmarshal breakdown for prospect %s", ps.ID)
			}
		}
		results = append(results, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: iterate latest scores")
	}
	return results, nil
}

// ConfigHash returns a SHA-256 hash of the scoring config for reproducibility.
func ConfigHash(cfg any) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}
