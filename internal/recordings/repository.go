package recordings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prepcoach/recordings/internal/models"
)

// ErrNotFound is returned when no metadata row exists for an id.
var ErrNotFound = errors.New("recording metadata not found")

// Store persists Mux metadata for one collection.
// The Mark* methods report whether a row changed.
type Store interface {
	MarkPreparing(ctx context.Context, id, assetID string) (bool, error)
	MarkReady(ctx context.Context, id, assetID string, playbackID *string) (bool, error)
	MarkErrored(ctx context.Context, id, assetID string) (bool, error)
	GetByID(ctx context.Context, id string) (*models.MediaAsset, error)
}

// Querier is the subset of pgxpool.Pool used by Repository.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the Postgres Store for a single collection's table.
type Repository struct {
	collection models.Collection
	pool       Querier
	qPreparing string
	qReady     string
	qErrored   string
	qGet       string
}

// NewRepository creates a repository bound to the collection's table.
func NewRepository(pool Querier, c models.Collection) (*Repository, error) {
	table := c.Table()
	if table == "" {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return &Repository{
		collection: c,
		pool:       pool,
		// The ready guard lives in the statement so a late created event cannot
		// land between a read and a write. NULL status must pass the guard.
		// An empty asset id keeps the stored one.
		qPreparing: `UPDATE ` + table + ` SET asset_id = COALESCE(NULLIF($1, ''), asset_id), status = 'preparing', updated_at = NOW()
			WHERE id = $2 AND status IS DISTINCT FROM 'ready'`,
		qReady: `UPDATE ` + table + ` SET asset_id = COALESCE(NULLIF($1, ''), asset_id), playback_id = $2, status = 'ready', updated_at = NOW()
			WHERE id = $3`,
		qErrored: `UPDATE ` + table + ` SET asset_id = COALESCE(NULLIF($1, ''), asset_id), status = 'errored', updated_at = NOW()
			WHERE id = $2`,
		qGet: `SELECT id, asset_id, playback_id, status, created_at, updated_at FROM ` + table + ` WHERE id = $1`,
	}, nil
}

// Collection returns the collection this repository writes to.
func (r *Repository) Collection() models.Collection { return r.collection }

// MarkPreparing sets status preparing unless the row is already ready.
func (r *Repository) MarkPreparing(ctx context.Context, id, assetID string) (bool, error) {
	return r.exec(ctx, "mark preparing", r.qPreparing, assetID, id)
}

// MarkReady sets status ready with the playback id. Always applied.
func (r *Repository) MarkReady(ctx context.Context, id, assetID string, playbackID *string) (bool, error) {
	return r.exec(ctx, "mark ready", r.qReady, assetID, playbackID, id)
}

// MarkErrored sets status errored. playback_id is left untouched.
func (r *Repository) MarkErrored(ctx context.Context, id, assetID string) (bool, error) {
	return r.exec(ctx, "mark errored", r.qErrored, assetID, id)
}

// GetByID returns the metadata row for id.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.MediaAsset, error) {
	var rec models.MediaAsset
	err := r.pool.QueryRow(ctx, r.qGet, id).Scan(&rec.ID, &rec.AssetID, &rec.PlaybackID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", r.collection, err)
	}
	return &rec, nil
}

func (r *Repository) exec(ctx context.Context, op, sql string, args ...any) (bool, error) {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("%s in %s: %w", op, r.collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Stores maps each collection to its Store.
type Stores map[models.Collection]Store

// NewStores builds a Postgres repository for every known collection.
func NewStores(pool Querier) (Stores, error) {
	stores := make(Stores, len(models.Collections))
	for _, c := range models.Collections {
		repo, err := NewRepository(pool, c)
		if err != nil {
			return nil, err
		}
		stores[c] = repo
	}
	return stores, nil
}

// Lookup returns the store for a routing tag. Unknown tags are rejected.
func (s Stores) Lookup(tag string) (models.Collection, Store, bool) {
	c, ok := models.ParseCollection(tag)
	if !ok {
		return "", nil, false
	}
	store, ok := s[c]
	return c, store, ok
}

// Load returns the current row for id in collection, or nil when there is none.
func (s Stores) Load(ctx context.Context, collection models.Collection, id string) (*models.MediaAsset, error) {
	store, ok := s[collection]
	if !ok {
		return nil, fmt.Errorf("no store for collection %q", collection)
	}
	rec, err := store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}
