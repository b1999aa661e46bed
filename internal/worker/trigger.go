package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/status"
)

// TriggerHandler decodes trigger messages independent of the transport.
type TriggerHandler struct {
	target   Triggerer
	snapshot func() *status.Snapshot
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTriggerHandler creates a handler that forwards refresh requests to
// target. snapshot may be nil.
func NewTriggerHandler(target Triggerer, snapshot func() *status.Snapshot, logger zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{target: target, snapshot: snapshot, logger: logger, now: time.Now}
}

// Handle processes one message payload. Unknown job types are accepted and
// ignored so they are not redelivered.
func (h *TriggerHandler) Handle(ctx context.Context, data []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.JobType == "" {
		return fmt.Errorf("%w: missing job_type", ErrMalformedMessage)
	}

	switch msg.JobType {
	case JobRefresh:
		h.logger.Info().Str("reason", msg.Reason).Msg("refresh requested")
		h.target.Trigger()
	case JobHealthCheck:
		ev := h.logger.Info()
		if h.snapshot != nil {
			snap := h.snapshot()
			ev = ev.
				Str("overall", string(snap.Overall)).
				Int("services", len(snap.Services)).
				Dur("cache_age", snap.Age(h.now()))
		}
		ev.Msg("health check")
	default:
		h.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
	}
	return nil
}
