package recordings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prepcoach/recordings/internal/models"
	"github.com/prepcoach/recordings/internal/realtime"
	"github.com/prepcoach/recordings/pkg/muxhook"
)

// Outcome describes what Apply did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"   // a row changed
	OutcomeUnchanged Outcome = "unchanged" // guarded by ready, or no row for the id
	OutcomeSkipped   Outcome = "skipped"   // malformed or unroutable event
	OutcomeIgnored   Outcome = "ignored"   // event type not handled
)

// SkipReason says why an event was skipped.
type SkipReason string

const (
	SkipMalformedAsset     SkipReason = "malformed_asset"
	SkipMissingPassthrough SkipReason = "missing_passthrough"
	SkipUnknownPassthrough SkipReason = "unknown_passthrough"
	SkipMissingExternalID  SkipReason = "missing_external_id"
	SkipMissingAssetID     SkipReason = "missing_asset_id"
)

// Result is returned by Apply.
type Result struct {
	Outcome    Outcome
	SkipReason SkipReason
	Collection models.Collection
	ExternalID string
	AssetID    string
}

// DefaultStoreTimeout bounds every store call made by Apply.
const DefaultStoreTimeout = 5 * time.Second

// StatusNotifier is told about every status change Apply makes.
type StatusNotifier interface {
	PublishStatus(ctx context.Context, ev realtime.StatusEvent) error
}

// Reconciler applies Mux asset events to recording metadata.
type Reconciler struct {
	stores       Stores
	storeTimeout time.Duration
	notifier     StatusNotifier
	logger       *zap.Logger
}

// NewReconciler creates a reconciler over the given stores.
func NewReconciler(stores Stores, storeTimeout time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Reconciler{stores: stores, storeTimeout: storeTimeout, logger: logger}
}

// WithNotifier publishes applied changes to n. Publish failures are logged, never returned.
func (r *Reconciler) WithNotifier(n StatusNotifier) *Reconciler {
	r.notifier = n
	return r
}

// Apply routes the event to its collection and applies the status transition.
// Only store failures are returned as errors; malformed events are reported as skipped.
func (r *Reconciler) Apply(ctx context.Context, event *muxhook.Event) (Result, error) {
	log := r.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if !event.IsAssetEvent() {
		log.Info("unhandled mux event")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	asset, err := event.Asset()
	if err != nil {
		log.Error("decode asset payload", zap.Error(err))
		return Result{Outcome: OutcomeSkipped, SkipReason: SkipMalformedAsset}, nil
	}
	res := Result{AssetID: asset.ID, ExternalID: asset.ExternalID()}
	log = log.With(zap.String("asset_id", asset.ID), zap.String("passthrough", asset.Passthrough), zap.String("external_id", res.ExternalID))

	if asset.Passthrough == "" {
		log.Error("missing passthrough (collection) in asset event")
		return skipped(res, SkipMissingPassthrough), nil
	}
	collection, store, ok := r.stores.Lookup(asset.Passthrough)
	if !ok {
		log.Error("unknown passthrough (collection) in asset event")
		return skipped(res, SkipUnknownPassthrough), nil
	}
	res.Collection = collection
	if res.ExternalID == "" {
		log.Error("missing external_id in asset event")
		return skipped(res, SkipMissingExternalID), nil
	}
	// asset_id is never cleared once set.
	if asset.ID == "" {
		log.Error("missing asset id in asset event")
		return skipped(res, SkipMissingAssetID), nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	var changed bool
	var status models.AssetStatus
	var playbackID *string
	switch event.Type {
	case muxhook.EventAssetCreated:
		status = models.AssetStatusPreparing
		changed, err = store.MarkPreparing(storeCtx, res.ExternalID, asset.ID)
	case muxhook.EventAssetReady:
		status = models.AssetStatusReady
		playbackID = asset.FirstPlaybackID()
		if playbackID != nil {
			log = log.With(zap.String("playback_id", *playbackID))
		}
		changed, err = store.MarkReady(storeCtx, res.ExternalID, asset.ID, playbackID)
	case muxhook.EventAssetErrored:
		status = models.AssetStatusErrored
		var errType string
		var messages []string
		if asset.Errors != nil {
			errType, messages = asset.Errors.Type, asset.Errors.Messages
		}
		log.Warn("mux asset errored", zap.String("error_type", errType), zap.Strings("error_messages", messages))
		changed, err = store.MarkErrored(storeCtx, res.ExternalID, asset.ID)
	}
	if err != nil {
		log.Error("update recording metadata failed", zap.String("status", string(status)), zap.Error(err))
		return res, fmt.Errorf("set %s on %s/%s: %w", status, collection, res.ExternalID, err)
	}

	if !changed {
		res.Outcome = OutcomeUnchanged
		if status == models.AssetStatusPreparing {
			log.Info("recording already ready or missing, preparing not applied")
		} else {
			log.Warn("no recording metadata row for external_id", zap.String("status", string(status)))
		}
		return res, nil
	}
	res.Outcome = OutcomeApplied
	log.Info("recording metadata updated", zap.String("status", string(status)))

	if r.notifier != nil {
		ev := realtime.StatusEvent{
			Collection: collection,
			ID:         res.ExternalID,
			EventType:  event.Type,
			Status:     status,
			AssetID:    asset.ID,
			PlaybackID: playbackID,
		}
		if err := r.notifier.PublishStatus(ctx, ev); err != nil {
			log.Warn("publish status event failed", zap.Error(err))
		}
	}
	return res, nil
}

func skipped(res Result, reason SkipReason) Result {
	res.Outcome = OutcomeSkipped
	res.SkipReason = reason
	return res
}
