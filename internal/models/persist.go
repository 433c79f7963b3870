package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/pitwall/internal/domain/scoring"
	"github.com/okian/pitwall/pkg/logger"
)

// ratingSnapshot is the on-disk form of a trained RatingModel.
type ratingSnapshot struct {
	Metadata Metadata             `json:"metadata"`
	KFactor  float64              `json:"k_factor"`
	Initial  float64              `json:"initial_rating"`
	Unseen   float64              `json:"unseen_position"`
	Ratings  map[string]float64   `json:"ratings"`
	History  map[string][]float64 `json:"history"`
	SavedAt  time.Time            `json:"saved_at"`
}

// Save writes the trained ratings and their history to path as JSON. The
// file appears atomically; parent directories are created.
func (m *RatingModel) Save(ctx context.Context, path string) error {
	m.mu.RLock()
	if !m.trained {
		m.mu.RUnlock()
		return ErrNotTrained
	}
	snap := ratingSnapshot{
		Metadata: m.metadata(),
		KFactor:  m.elo.K(),
		Initial:  m.initial,
		Unseen:   m.unseen,
		Ratings:  make(map[string]float64, len(m.ratings)),
		History:  make(map[string][]float64, len(m.history)),
		SavedAt:  time.Now().UTC(),
	}
	for d, r := range m.ratings {
		snap.Ratings[d] = r
	}
	for d, h := range m.history {
		snap.History[d] = append([]float64(nil), h...)
	}
	m.mu.RUnlock()

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ratings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	m.logger.Info(ctx, "rating model saved",
		logger.String("path", path),
		logger.Int("drivers", len(snap.Ratings)))
	return nil
}

// LoadRatingModel restores a model written by Save. opts configure the
// board and logger; the rating parameters come from the file.
func LoadRatingModel(ctx context.Context, path string, opts ...RatingOption) (*RatingModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap ratingSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSnapshot, filepath.Base(path), err)
	}
	if snap.Metadata.Name != RatingModelName || !snap.Metadata.Trained || len(snap.Ratings) == 0 {
		return nil, fmt.Errorf("%w: %s holds no trained %s ratings", ErrInvalidSnapshot, filepath.Base(path), RatingModelName)
	}

	m := NewRatingModel(opts...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elo = scoring.NewElo(scoring.WithKFactor(snap.KFactor))
	m.initial = snap.Initial
	m.unseen = snap.Unseen
	m.board.Reset(ctx)
	for d, r := range snap.Ratings {
		m.ratings[d] = r
		h := snap.History[d]
		if len(h) == 0 {
			h = []float64{r}
		}
		m.history[d] = h
		if err := m.board.Set(ctx, d, r); err != nil {
			return nil, fmt.Errorf("mirror rating of %s: %w", d, err)
		}
	}
	m.trained = true
	m.logger.Info(ctx, "rating model loaded",
		logger.String("path", path),
		logger.Int("drivers", len(m.ratings)))
	return m, nil
}
