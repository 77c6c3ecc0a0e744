package recordings

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prepcoach/recordings/pkg/response"
)

// Handler serves recording metadata to the web app.
type Handler struct {
	stores       Stores
	storeTimeout time.Duration
	logger       *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(stores Stores, storeTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Handler{stores: stores, storeTimeout: storeTimeout, logger: logger}
}

// Get handles GET /recordings/:collection/:id. Used to poll until a playback id is available.
func (h *Handler) Get(c *gin.Context) {
	collection, store, ok := h.stores.Lookup(c.Param("collection"))
	if !ok {
		response.BadRequest(c, "unknown collection")
		return
	}
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()
	rec, err := store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get recording metadata failed", zap.Error(err), zap.String("collection", string(collection)), zap.String("id", id))
		response.Internal(c, "failed to load recording")
		return
	}
	response.OK(c, rec)
}
