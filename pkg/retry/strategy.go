package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/mizumi-finance/mizumi-server/pkg/retry/backoff"
)

// Strategy decides whether a failed action gets another attempt. attempts
// counts the attempts made so far, starting at 1. Strategies may sleep.
type Strategy func(attempts uint, err error) bool

// Limit allows at most maxAttempts attempts in total
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors only retries errors matching one of retriable via errors.Is
func RetriableErrors(retriable ...error) Strategy {
	return RetriableIf(func(err error) bool {
		for _, target := range retriable {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// NonRetriableErrors retries everything except errors matching one of
// nonRetriable via errors.Is
func NonRetriableErrors(nonRetriable ...error) Strategy {
	return RetriableIf(func(err error) bool {
		for _, target := range nonRetriable {
			if errors.Is(err, target) {
				return false
			}
		}
		return true
	})
}

// RetriableIf only retries errors accepted by isRetriable
func RetriableIf(isRetriable func(err error) bool) Strategy {
	return func(_ uint, err error) bool {
		return isRetriable(err)
	}
}

// Context stops retrying once ctx is done
func Context(ctx context.Context) Strategy {
	return func(_ uint, _ error) bool {
		return ctx.Err() == nil
	}
}

// Backoff sleeps for the delay given by strategy, capped at maxBackoff
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, _ error) bool {
		sleeperImpl.Sleep(capDelay(strategy(attempts), maxBackoff))
		return true
	}
}

// BackoffWithJitter is Backoff with the capped delay randomly adjusted by up to
// jitter, a fraction of the delay, in either direction. With jitter 0.1, a
// 100ms delay becomes anything within 90ms to 110ms.
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, _ error) bool {
		delay := capDelay(strategy(attempts), maxBackoff)
		factor := 1 + jitter*(2*rand.Float64()-1)
		sleeperImpl.Sleep(time.Duration(float64(delay) * factor))
		return true
	}
}

func capDelay(delay, maxDelay time.Duration) time.Duration {
	return time.Duration(math.Min(float64(delay), float64(maxDelay)))
}

type sleeper interface {
	Sleep(time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

var sleeperImpl sleeper = realSleeper{}
