package commands

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayengine/internal/infra/config"
	"stayengine/internal/infra/fixtures"
)

func memoryConfig(t *testing.T) config.Config {
	return config.Config{
		Env:                    "test",
		Store:                  config.StoreMemory,
		BoltPath:               filepath.Join(t.TempDir(), "idem.db"),
		IdempotencyTTL:         time.Hour,
		OutboxPollInterval:     time.Second,
		RetryBackoff:           []time.Duration{time.Millisecond},
		RequestTTL:             24 * time.Hour,
		ScheduleInterval:       time.Minute,
		LockTTL:                time.Second,
		GuestServiceFeePercent: decimal.NewFromInt(14),
		HostServiceFeePercent:  decimal.NewFromInt(3),
		ListingsFixtures:       filepath.Join("..", "..", "..", "fixtures", "listings.json"),
	}
}

func TestBuildMemoryStack(t *testing.T) {
	ctx := context.Background()
	c := memoryConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := buildStack(ctx, c, log)
	require.NoError(t, err)
	defer st.Close(ctx)

	assert.NotNil(t, st.engine)
	assert.NotNil(t, st.purge)
	assert.Nil(t, st.relay(c, log))

	n, err := fixtures.Seed(ctx, st.listings, c.ListingsFixtures, log)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := st.engine.AdvanceScheduledStates(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, res.Examined)
	require.NoError(t, st.purge(ctx))
}

func TestBuildStackRejectsUnknownStore(t *testing.T) {
	c := memoryConfig(t)
	c.Store = "cassandra"
	_, err := buildStack(context.Background(), c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
