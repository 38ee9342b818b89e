package retry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/mizumi-finance/mizumi-server/pkg/retry/backoff"
)

func TestLimit(t *testing.T) {
	strategy := Limit(2)

	assert.True(t, strategy(1, errors.New("test")))
	assert.False(t, strategy(2, errors.New("test")))
	assert.False(t, strategy(3, errors.New("test")))
}

func TestRetriableErrors(t *testing.T) {
	retriable := []error{
		errors.New("retriableA"),
		errors.New("retriableB"),
	}

	strategy := RetriableErrors(retriable...)
	for _, err := range retriable {
		assert.True(t, strategy(1, err))
		assert.True(t, strategy(1, errors.Wrap(err, "wrapped")))
	}
	assert.False(t, strategy(1, errors.New("unexpected")))
}

func TestNonRetriableErrors(t *testing.T) {
	nonRetriable := []error{
		errors.New("nonRetriableA"),
		errors.New("nonRetriableB"),
	}

	strategy := NonRetriableErrors(nonRetriable...)
	for _, err := range nonRetriable {
		assert.False(t, strategy(1, err))
		assert.False(t, strategy(1, errors.Wrap(err, "wrapped")))
	}
	assert.True(t, strategy(1, errors.New("unexpected")))
}

func TestRetriableIf(t *testing.T) {
	strategy := RetriableIf(func(err error) bool {
		return err.Error() == "serialization failure"
	})

	assert.True(t, strategy(1, errors.New("serialization failure")))
	assert.False(t, strategy(1, errors.New("unique violation")))
}

func TestContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	strategy := Context(ctx)

	assert.True(t, strategy(1, errors.New("test")))
	cancel()
	assert.False(t, strategy(1, errors.New("test")))
}

func TestBackoff(t *testing.T) {
	ts := &testSleeper{}
	sleeperImpl = ts
	defer func() { sleeperImpl = realSleeper{} }()

	strategy := Backoff(backoff.BinaryExponential(100*time.Millisecond), 300*time.Millisecond)
	for attempt := uint(1); attempt <= 4; attempt++ {
		assert.True(t, strategy(attempt, errors.New("test")))
	}

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, ts.sleepTimes)
}

func TestBackoffWithJitter(t *testing.T) {
	ts := &testSleeper{}
	sleeperImpl = ts
	defer func() { sleeperImpl = realSleeper{} }()

	delay := time.Millisecond
	strategy := BackoffWithJitter(backoff.Constant(delay), delay, 0.1)
	for i := 0; i < 10000; i++ {
		assert.True(t, strategy(1, errors.New("test")))
	}

	for _, d := range ts.sleepTimes {
		assert.InDelta(t, float64(delay), float64(d), 0.1*float64(delay))
	}

	// Uniform jitter over +/- 10% has a mean absolute deviation of 5%
	assert.InDelta(t, float64(delay), float64(ts.mean()), 0.01*float64(delay))
	assert.InDelta(t, 0.05*float64(delay), float64(ts.absDeviation()), 0.005*float64(delay))
}

type testSleeper struct {
	sleepTimes []time.Duration
}

func (t *testSleeper) Sleep(d time.Duration) {
	t.sleepTimes = append(t.sleepTimes, d)
}

func (t *testSleeper) mean() time.Duration {
	var total time.Duration
	for _, d := range t.sleepTimes {
		total += d
	}
	return total / time.Duration(len(t.sleepTimes))
}

func (t *testSleeper) absDeviation() time.Duration {
	mean := t.mean()

	var total float64
	for _, d := range t.sleepTimes {
		total += math.Abs(float64(d - mean))
	}
	return time.Duration(total / float64(len(t.sleepTimes)))
}
