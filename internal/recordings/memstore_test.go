package recordings

import (
	"context"
	"sync"
	"time"

	"github.com/prepcoach/recordings/internal/models"
)

// memStore mirrors the Postgres statements against an in-memory table.
type memStore struct {
	mu     sync.Mutex
	rows   map[string]*models.MediaAsset
	writes int
	err    error
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{rows: map[string]*models.MediaAsset{}}
	for _, id := range ids {
		s.rows[id] = &models.MediaAsset{ID: id, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	}
	return s
}

func (s *memStore) update(id string, fn func(*models.MediaAsset) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	row, ok := s.rows[id]
	if !ok || !fn(row) {
		return false, nil
	}
	s.writes++
	row.UpdatedAt = time.Now()
	return true, nil
}

func strPtr(s string) *string { return &s }

func statusPtr(st models.AssetStatus) *models.AssetStatus { return &st }

// setAssetID mirrors COALESCE(NULLIF($1, ”), asset_id).
func setAssetID(r *models.MediaAsset, assetID string) {
	if assetID != "" {
		r.AssetID = strPtr(assetID)
	}
}

func (s *memStore) MarkPreparing(_ context.Context, id, assetID string) (bool, error) {
	return s.update(id, func(r *models.MediaAsset) bool {
		if r.Status != nil && *r.Status == models.AssetStatusReady {
			return false
		}
		setAssetID(r, assetID)
		r.Status = statusPtr(models.AssetStatusPreparing)
		return true
	})
}

func (s *memStore) MarkReady(_ context.Context, id, assetID string, playbackID *string) (bool, error) {
	return s.update(id, func(r *models.MediaAsset) bool {
		setAssetID(r, assetID)
		r.PlaybackID = nil
		if playbackID != nil {
			r.PlaybackID = strPtr(*playbackID)
		}
		r.Status = statusPtr(models.AssetStatusReady)
		return true
	})
}

func (s *memStore) MarkErrored(_ context.Context, id, assetID string) (bool, error) {
	return s.update(id, func(r *models.MediaAsset) bool {
		setAssetID(r, assetID)
		r.Status = statusPtr(models.AssetStatusErrored)
		return true
	})
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.MediaAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
