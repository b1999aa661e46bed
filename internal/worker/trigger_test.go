package worker_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/status"
	"github.com/marcleai/statusboard/internal/worker"
)

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

func TestTriggerHandler(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		triggered int
	}{
		{name: "refresh", payload: `{"job_type":"refresh","reason":"deploy"}`, triggered: 1},
		{name: "health check", payload: `{"job_type":"health_check"}`},
		{name: "unknown job is acked", payload: `{"job_type":"provider_refresh"}`},
		{name: "not json", payload: `refresh`, wantErr: true},
		{name: "missing job type", payload: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &countingTrigger{}
			cache := status.NewCache()
			h := worker.NewTriggerHandler(target, cache.Load, zerolog.Nop())

			err := h.Handle(context.Background(), []byte(tt.payload))
			if tt.wantErr {
				require.ErrorIs(t, err, worker.ErrMalformedMessage)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.triggered, target.n)
		})
	}
}

func TestTriggerHandler_HealthCheckLogsSnapshot(t *testing.T) {
	var buf bytes.Buffer
	cache := status.NewCache()
	cache.Store(status.NewSnapshot([]status.ServiceView{{ID: "plex", Status: status.Down}}, time.Time{}, time.Time{}, 0))

	h := worker.NewTriggerHandler(&countingTrigger{}, cache.Load, zerolog.New(&buf))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"job_type":"health_check"}`)))

	assert.Contains(t, buf.String(), `"overall":"down"`)
	assert.Contains(t, buf.String(), `"services":1`)
}
