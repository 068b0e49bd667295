package retry

import (
	"time"

	"github.com/tammahq/tamma/internal/types"
)

// StrategyFor selects the backoff strategy for a classification. Timeouts
// and rate limits back off exponentially; capacity problems grow linearly
// (pressure eases roughly proportionally to waiting); deterministic failures
// like a broken build get a fixed pause, long enough for a transient
// environment issue to clear but with no value in growing it.
func StrategyFor(class types.ErrorClassification) types.BackoffStrategy {
	switch class {
	case types.ClassNetworkTimeout, types.ClassRateLimited,
		types.ClassTemporaryFailure, types.ClassDependencyUnavailable:
		return types.BackoffExponential
	case types.ClassResourceExhausted, types.ClassBuildTimeout:
		return types.BackoffLinear
	case types.ClassCompilationError, types.ClassTestFailure:
		return types.BackoffFixed
	}
	return types.BackoffExponential
}

// Delay computes the wait before the next attempt, given the attempt that
// just failed (1-based). Pure function of (strategy, attempt, config),
// capped at maxDelay for the growing strategies.
func Delay(strategy types.BackoffStrategy, attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch strategy {
	case types.BackoffExponential:
		d = baseDelay
		for i := 1; i < attempt; i++ {
			d *= 2
			if maxDelay > 0 && d >= maxDelay {
				return maxDelay
			}
		}
	case types.BackoffLinear:
		d = baseDelay * time.Duration(attempt)
	case types.BackoffFixed:
		return baseDelay
	case types.BackoffImmediate:
		return 0
	default:
		d = baseDelay
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
