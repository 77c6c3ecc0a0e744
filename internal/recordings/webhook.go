package recordings

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prepcoach/recordings/pkg/muxhook"
	"github.com/prepcoach/recordings/pkg/queue"
	"github.com/prepcoach/recordings/pkg/response"
)

// DefaultMaxBodyBytes caps the webhook body read before verification.
const DefaultMaxBodyBytes = 1 << 20

const deadLetterTimeout = 2 * time.Second

// SignatureVerifier authenticates a raw webhook body.
type SignatureVerifier interface {
	Verify(body []byte, header http.Header) error
}

// DeadLetterSink records deliveries that were acknowledged without being applied.
type DeadLetterSink interface {
	EnqueueDeadLetter(ctx context.Context, payload queue.DeadLetterPayload) error
}

// WebhookAck is the data returned to Mux on success.
type WebhookAck struct {
	Message string  `json:"message"`
	Outcome Outcome `json:"outcome"`
}

// WebhookHandler handles Mux video webhooks.
type WebhookHandler struct {
	verifier     SignatureVerifier
	reconciler   *Reconciler
	deadLetters  DeadLetterSink
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewWebhookHandler creates a webhook handler. deadLetters may be nil.
func NewWebhookHandler(verifier SignatureVerifier, reconciler *Reconciler, deadLetters DeadLetterSink, maxBodyBytes int64, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &WebhookHandler{
		verifier:     verifier,
		reconciler:   reconciler,
		deadLetters:  deadLetters,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Mux handles POST /webhooks/mux. The signature is checked before the body is parsed.
// Store failures return 500 so Mux redelivers; malformed events are acknowledged.
func (h *WebhookHandler) Mux(c *gin.Context) {
	log := h.logger.With(zap.String("function", "muxWebhook"))

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("webhook body too large", zap.Int64("limit", tooLarge.Limit))
			response.TooLarge(c, "request body too large")
			return
		}
		log.Error("read webhook body", zap.Error(err))
		response.BadRequest(c, "could not read request body")
		return
	}

	if err := h.verifier.Verify(body, c.Request.Header); err != nil {
		log.Error("webhook signature verification failed", zap.Error(err))
		response.Unauthorized(c, "invalid signature")
		return
	}

	event, err := muxhook.Unwrap(body)
	if err != nil {
		log.Error("unwrap mux webhook event", zap.Error(err))
		response.BadRequest(c, "invalid event payload")
		return
	}
	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	if !event.CreatedAt.IsZero() {
		log = log.With(zap.Time("event_created_at", event.CreatedAt))
	}
	log.Info("processing mux webhook event")

	res, err := h.reconciler.Apply(c.Request.Context(), event)
	if err != nil {
		log.Error("failed to update mux metadata", zap.String("collection", string(res.Collection)), zap.String("external_id", res.ExternalID), zap.Error(err))
		response.Internal(c, err.Error())
		return
	}

	if res.Outcome == OutcomeSkipped {
		h.deadLetter(c.Request.Context(), log, event, res.SkipReason, body, c.GetHeader(muxhook.SignatureHeader))
	}

	fields := []zap.Field{zap.String("outcome", string(res.Outcome))}
	if !event.CreatedAt.IsZero() {
		fields = append(fields, zap.Duration("processing_time", time.Since(event.CreatedAt)))
	}
	log.Info("mux webhook processed", fields...)
	response.OK(c, WebhookAck{Message: "ok", Outcome: res.Outcome})
}

// deadLetter records a skipped delivery. Failures are logged only; the delivery is still acknowledged.
func (h *WebhookHandler) deadLetter(ctx context.Context, log *zap.Logger, event *muxhook.Event, reason SkipReason, body []byte, signature string) {
	if h.deadLetters == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
	defer cancel()
	err := h.deadLetters.EnqueueDeadLetter(ctx, queue.DeadLetterPayload{
		EventID:    event.ID,
		EventType:  event.Type,
		Reason:     string(reason),
		Body:       body,
		Signature:  signature,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Error("enqueue dead letter failed", zap.String("reason", string(reason)), zap.Error(err))
	}
}
