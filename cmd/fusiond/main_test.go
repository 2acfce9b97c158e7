package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/robocin/framework/internal/config"
	"github.com/robocin/framework/internal/vision/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlags_DefaultValues(t *testing.T) {
	t.Parallel()

	require.NotNil(t, listen)
	require.NotNil(t, tickPeriod)
	assert.Equal(t, 16*time.Millisecond, *tickPeriod)
}

func TestReadFeed_QueuesDecodedPackets(t *testing.T) {
	t.Parallel()

	line := `{"camera_id":0,"capture_time":"2026-01-01T00:00:00Z","yellow":[{"ID":0,"XMM":100,"YMM":200,"OrientationRad":0}],"blue":[],"balls":[],"geometry":[{"id":0,"position":{"X":0,"Y":0,"Z":4},"focal_length":390}]}` + "\n"

	tr := tracker.New(config.Default())
	readFeed(context.Background(), bytes.NewBufferString(line), tr)

	tr.Process(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	snap := tr.WorldState(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Len(t, snap.Yellow, 1)
}

func TestReadFeed_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	tr := tracker.New(config.Default())
	assert.NotPanics(t, func() {
		readFeed(context.Background(), bytes.NewBufferString("not json\n"), tr)
	})
}
