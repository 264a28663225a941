package logring_test

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/query-cache/logring"
)

func TestRingDropsOldestPastCapacity(t *testing.T) {
	r := logring.New(3)

	for i := 0; i < 5; i++ {
		r.Append(logring.Record{Time: time.Now(), Level: slog.LevelInfo, Message: fmt.Sprintf("m%d", i)})
	}

	recs := r.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "m2", recs[0].Message)
	assert.Equal(t, "m3", recs[1].Message)
	assert.Equal(t, "m4", recs[2].Message)
	assert.Equal(t, 3, r.Len())
}

func TestRingBelowCapacityKeepsEverythingInOrder(t *testing.T) {
	r := logring.New(10)

	r.Append(logring.Record{Message: "first"})
	r.Append(logring.Record{Message: "second"})

	recs := r.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].Message)
	assert.Equal(t, "second", recs[1].Message)
}

func TestHandlerCapturesEnabledLevels(t *testing.T) {
	r := logring.New(8)
	logger := slog.New(logring.NewHandler(r, slog.LevelInfo))

	logger.Debug("filtered out")
	logger.Info("kept", "key", "users")
	logger.Error("failed", "error", "boom")

	recs := r.Records()
	require.Len(t, recs, 2)

	assert.Equal(t, slog.LevelInfo, recs[0].Level)
	assert.Contains(t, recs[0].Message, "kept")
	assert.Contains(t, recs[0].Message, "key=users")

	assert.Equal(t, slog.LevelError, recs[1].Level)
	assert.Contains(t, recs[1].Message, "error=boom")
	assert.False(t, recs[1].Time.IsZero())
}

func TestHandlerAppliesAttrsAndGroups(t *testing.T) {
	r := logring.New(8)
	logger := slog.New(logring.NewHandler(r, slog.LevelInfo)).
		With("component", "cache").
		WithGroup("query").
		With("stage", "settle")

	logger.Info("done", "key", "k1")

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Message, "component=cache")
	assert.NotContains(t, recs[0].Message, "query.component",
		"attrs added before a group keep their unqualified keys")
	assert.Contains(t, recs[0].Message, "query.stage=settle")
	assert.Contains(t, recs[0].Message, "query.key=k1")
}
