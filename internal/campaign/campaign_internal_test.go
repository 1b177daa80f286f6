package campaign

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokal-id/netstress/internal/runner"
)

func TestStressStartsFromEmptyMeasurements(t *testing.T) {
	var (
		calls     atomic.Int64
		successes atomic.Int64
		stressing atomic.Bool
	)
	release := make(chan struct{})

	req := runner.RequesterFunc(func(ctx context.Context) error {
		if stressing.Load() {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if calls.Add(1)%2 == 0 {
			return errors.New("warm-up failure")
		}
		successes.Add(1)
		return nil
	})

	c, err := New(Options{
		Config: Config{
			RPS:         4,
			Pattern:     runner.Burst,
			WarmUp:      2,
			Stress:      1,
			SettleDelay: 200 * time.Millisecond,
			GracePeriod: time.Second,
		},
		Requester: req,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return c.State() == Stabilizing }, 10*time.Second, time.Millisecond)
	stressing.Store(true)
	require.Positive(t, successes.Load(), "warm-up recorded latency samples")

	require.Eventually(t, func() bool { return c.State() == Stressing }, 5*time.Second, time.Millisecond)
	// stress units are held, so everything visible here survived the reset
	cum := c.latency.Cumulative()
	assert.Zero(t, cum.Service.Count)
	assert.Zero(t, cum.Response.Count)
	assert.Zero(t, c.failures.Total())
	assert.Empty(t, c.breakdown.Rows())

	close(release)
	report, err := c.AwaitCompletion(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, report.Admitted)
	assert.EqualValues(t, 4, report.Service.Count)
	assert.EqualValues(t, 4, report.Response.Count)
	assert.Zero(t, report.Failures)
	assert.Empty(t, report.FailureKinds)
}
