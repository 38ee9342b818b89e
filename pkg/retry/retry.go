package retry

import (
	"context"
)

// Action is a unit of work that may be attempted more than once
type Action func() error

// Retry runs action until it succeeds, or until one of the strategies declines
// another attempt. The number of attempts and the last error are returned.
//
// Strategies are consulted in order after every failure, so strategies that
// sleep should be listed last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for attempt := uint(1); ; attempt++ {
		err := action()
		if err == nil {
			return attempt, nil
		}

		for _, strategy := range strategies {
			if !strategy(attempt, err) {
				return attempt, err
			}
		}
	}
}

// RetryWithContext is Retry with an implicit Context strategy ahead of the
// provided ones. ctx is passed through to action.
func RetryWithContext(ctx context.Context, action func(ctx context.Context) error, strategies ...Strategy) (uint, error) {
	withContext := make([]Strategy, 0, len(strategies)+1)
	withContext = append(withContext, Context(ctx))
	withContext = append(withContext, strategies...)

	return Retry(func() error { return action(ctx) }, withContext...)
}
