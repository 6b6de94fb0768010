package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/config"
	"github.com/forgo/progression/internal/model"
	"github.com/forgo/progression/internal/sqlstore"
)

func TestNew_WiresEngineOnSQLite(t *testing.T) {
	store, err := sqlstore.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	cfg := config.Default()
	cfg.Engine.TimeZone = "UTC"
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	a, err := New(cfg, store, nil, Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	award, err := a.Progression.AwardXP(ctx, "u1", model.DimensionKnowledge, 120, "manual")
	require.NoError(t, err)
	assert.Equal(t, int64(120), award.Awarded)

	report, err := a.Scheduler.RunNow(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "2026-03-05", report.Date)

	again, err := a.Scheduler.RunNow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, again.Skipped, "second run on the same date is skipped")
	assert.True(t, again.IsEmpty())
}

func TestNew_RejectsUnknownWeight(t *testing.T) {
	store, err := sqlstore.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	cfg := config.Default()
	cfg.Engine.DimensionWeights = map[string]float64{"luck": 1}

	_, err = New(cfg, store, nil, Options{})
	assert.ErrorIs(t, err, model.ErrUnknownDimension)
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "postgres"

	_, err := Open(context.Background(), cfg, nil, Options{})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", JSON: false})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
