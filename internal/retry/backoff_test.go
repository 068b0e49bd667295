package retry

import (
	"testing"
	"time"

	"github.com/tammahq/tamma/internal/types"
)

func TestExponentialDelaySequence(t *testing.T) {
	base := 2000 * time.Millisecond
	max := 8000 * time.Millisecond

	want := []time.Duration{2000, 4000, 8000, 8000, 8000}
	for i, w := range want {
		got := Delay(types.BackoffExponential, i+1, base, max)
		if got != w*time.Millisecond {
			t.Errorf("exponential attempt %d = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
}

func TestExponentialNoOverflow(t *testing.T) {
	// A huge attempt number must stay pinned at maxDelay, not wrap around.
	got := Delay(types.BackoffExponential, 500, time.Second, time.Minute)
	if got != time.Minute {
		t.Errorf("attempt 500 = %v, want %v", got, time.Minute)
	}
}

func TestLinearDelay(t *testing.T) {
	base := time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 5 * time.Second},
		{100, 10 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := Delay(types.BackoffLinear, tt.attempt, base, 10*time.Second); got != tt.want {
			t.Errorf("linear attempt %d = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestFixedAndImmediateDelay(t *testing.T) {
	for attempt := 1; attempt <= 4; attempt++ {
		if got := Delay(types.BackoffFixed, attempt, 5*time.Second, time.Minute); got != 5*time.Second {
			t.Errorf("fixed attempt %d = %v", attempt, got)
		}
		if got := Delay(types.BackoffImmediate, attempt, 5*time.Second, time.Minute); got != 0 {
			t.Errorf("immediate attempt %d = %v", attempt, got)
		}
	}
}

func TestDelayClampsAttempt(t *testing.T) {
	if got := Delay(types.BackoffExponential, 0, time.Second, time.Minute); got != time.Second {
		t.Errorf("attempt 0 = %v, want base", got)
	}
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		class types.ErrorClassification
		want  types.BackoffStrategy
	}{
		{types.ClassNetworkTimeout, types.BackoffExponential},
		{types.ClassRateLimited, types.BackoffExponential},
		{types.ClassTemporaryFailure, types.BackoffExponential},
		{types.ClassDependencyUnavailable, types.BackoffExponential},
		{types.ClassResourceExhausted, types.BackoffLinear},
		{types.ClassBuildTimeout, types.BackoffLinear},
		{types.ClassCompilationError, types.BackoffFixed},
		{types.ClassTestFailure, types.BackoffFixed},
	}
	for _, tt := range tests {
		if got := StrategyFor(tt.class); got != tt.want {
			t.Errorf("StrategyFor(%s) = %s, want %s", tt.class, got, tt.want)
		}
	}
}
