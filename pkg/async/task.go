package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// Task is a unit of background work
type Task func(ctx context.Context) error

// Run executes fn with a timeout derived from parent. A panic is recovered,
// logged with its stack and returned as an error.
func Run(parent context.Context, logger *observability.Logger, timeout time.Duration, name string, fn Task) (err error) {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	log := logger.WithField("task", name)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("panic in %s: %v", name, r)
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()

	start := time.Now()
	if err = fn(ctx); err != nil {
		log.WithError(err).Error("task failed")
		return err
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("task complete")
	return nil
}

// SafeGo runs fn on its own goroutine under Run. done, when non-nil, receives the result.
func SafeGo(parent context.Context, logger *observability.Logger, timeout time.Duration, name string, fn Task, done chan<- error) {
	go func() {
		err := Run(parent, logger, timeout, name, fn)
		if done != nil {
			done <- err
		}
	}()
}
