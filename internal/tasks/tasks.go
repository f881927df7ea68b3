package tasks

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-router/internal/payment"
)

// TypeReliabilityRefresh recomputes the provider reliability snapshot from the
// windowed outcome counters.
const TypeReliabilityRefresh = "reliability:refresh"

// NewReliabilityRefreshTask builds the periodic refresh task. It carries no
// payload; the handler always refreshes every registered provider.
func NewReliabilityRefreshTask() *asynq.Task {
	return asynq.NewTask(TypeReliabilityRefresh, nil)
}

// ReliabilityRefresher processes reliability refresh tasks.
type ReliabilityRefresher struct {
	Reliability *payment.Reliability
	Registry    *payment.Registry
	Logger      zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h ReliabilityRefresher) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	if h.Reliability == nil || h.Registry == nil {
		return nil
	}
	names := h.Registry.Names()
	if err := h.Reliability.Refresh(ctx, names); err != nil {
		h.Logger.Error().Err(err).Msg("refresh reliability snapshot")
		return err
	}
	h.Logger.Debug().Strs("providers", names).Msg("reliability snapshot refreshed")
	return nil
}

// NewMux wires all task handlers onto an asynq mux.
func NewMux(refresher ReliabilityRefresher) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReliabilityRefresh, refresher)
	return mux
}
