package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/config"
	"github.com/noah-isme/payment-router/internal/payment"
	"github.com/noah-isme/payment-router/internal/tasks"
)

func TestReliabilityRefresherRecomputesSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		EnabledProviders: []string{"stripe"},
		Providers: map[string]config.ProviderConfig{
			"stripe": {SecretKey: "sk_test"},
		},
	}
	reg, err := payment.BuildRegistry(cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	rel := payment.NewReliability(client, time.Hour)
	ctx := context.Background()
	rel.RecordOutcome(ctx, "stripe", true)
	rel.RecordOutcome(ctx, "stripe", true)
	rel.RecordOutcome(ctx, "stripe", false)

	refresher := tasks.ReliabilityRefresher{Reliability: rel, Registry: reg, Logger: zerolog.Nop()}
	require.NoError(t, refresher.ProcessTask(ctx, tasks.NewReliabilityRefreshTask()))
	require.InDelta(t, 2.0/3.0, rel.Score("stripe"), 0.0001)

	// The refreshed snapshot is persisted for other processes to adopt.
	other := payment.NewReliability(client, time.Hour)
	loaded, err := other.Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded)
	require.InDelta(t, 2.0/3.0, other.Score("stripe"), 0.0001)
}

func TestReliabilityRefresherWithoutDependenciesIsNoop(t *testing.T) {
	refresher := tasks.ReliabilityRefresher{Logger: zerolog.Nop()}
	require.NoError(t, refresher.ProcessTask(context.Background(), tasks.NewReliabilityRefreshTask()))
}
