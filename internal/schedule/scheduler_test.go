package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietScheduler() *Scheduler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScheduler_EveryRunsJob(t *testing.T) {
	s := quietScheduler()

	var calls atomic.Int32
	ran := make(chan struct{}, 10)
	require.NoError(t, s.Every("tick", time.Second, func(ctx context.Context) error {
		calls.Add(1)
		ran <- struct{}{}
		return errors.New("failures are logged, not fatal")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestScheduler_RejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := quietScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Every("a", time.Minute, noop))
	assert.Error(t, s.Every("a", time.Minute, noop))
	assert.Error(t, s.Every("b", 0, noop))
	assert.Error(t, s.Add("c", "not a cron spec", noop))
	require.NoError(t, s.Add("d", "@every 30s", noop))

	assert.Equal(t, []string{"a", "d"}, s.Names())

	s.Remove("a")
	s.Remove("missing")
	assert.Equal(t, []string{"d"}, s.Names())
}

func TestScheduler_EveryRoundsDownToSeconds(t *testing.T) {
	s := quietScheduler()
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"sub-second", 500 * time.Millisecond, time.Second},
		{"fractional", 1500 * time.Millisecond, time.Second},
		{"whole", 90 * time.Second, 90 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.Every(tt.name, tt.interval, noop))
			entry := s.cron.Entry(s.entries[tt.name])
			assert.Equal(t, cron.ConstantDelaySchedule{Delay: tt.want}, entry.Schedule)
		})
	}
}
