package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SleepResult represents the outcome of a context-aware sleep operation.
type SleepResult int

const (
	// SleepCompleted indicates the sleep duration completed normally.
	SleepCompleted SleepResult = iota
	// SleepCancelled indicates the context was cancelled during sleep.
	SleepCancelled
)

// ContextSleep sleeps for the specified duration while respecting context cancellation.
func ContextSleep(ctx context.Context, duration time.Duration) SleepResult {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return SleepCompleted
	case <-ctx.Done():
		return SleepCancelled
	}
}

// ContextSleepUntil waits until the specified time while respecting context cancellation.
func ContextSleepUntil(ctx context.Context, target time.Time) SleepResult {
	duration := time.Until(target)
	if duration <= 0 {
		if ctx.Err() != nil {
			return SleepCancelled
		}

		return SleepCompleted
	}

	return ContextSleep(ctx, duration)
}

// NextTick returns the first multiple of every strictly after now, as
// computed by time.Truncate. A minute period lands on the next minute boundary.
func NextTick(now time.Time, every time.Duration) time.Time {
	if every <= 0 {
		return now
	}

	next := now.Truncate(every)
	if !next.After(now) {
		next = next.Add(every)
	}

	return next
}

// TickSleep waits for the next aligned tick of every.
// Returns true if should continue, false if the context was cancelled.
func TickSleep(ctx context.Context, every time.Duration, logger *zap.Logger, workerName string) bool {
	if ContextSleepUntil(ctx, NextTick(time.Now(), every)) == SleepCancelled {
		logger.Info("Context cancelled while waiting for next tick, stopping " + workerName)
		return false
	}

	return true
}

// ErrorSleep sleeps for the specified duration after an error, respecting context cancellation.
// Returns true if should continue, false if should return.
func ErrorSleep(ctx context.Context, duration time.Duration, logger *zap.Logger, workerName string) bool {
	if ContextSleep(ctx, duration) == SleepCancelled {
		logger.Info("Context cancelled during error wait, stopping " + workerName)
		return false
	}

	return true
}

// IntervalSleep sleeps for a short interval between operations, respecting context cancellation.
// Returns true if should continue, false if should return.
func IntervalSleep(ctx context.Context, duration time.Duration, logger *zap.Logger, workerName string) bool {
	if ContextSleep(ctx, duration) == SleepCancelled {
		logger.Info("Context cancelled during pause, stopping " + workerName)
		return false
	}

	return true
}
