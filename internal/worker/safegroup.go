package worker

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	initialRestartBackoff = 200 * time.Millisecond
	maxRestartBackoff     = 30 * time.Second
)

// SafeGroup supervises the long-running pieces of a process, such as the
// sync loop and the HTTP server. The first returned error cancels every
// sibling; a panic restarts only the panicking worker.
type SafeGroup struct {
	group *errgroup.Group
	// ctx is canceled on parent cancellation or the first worker error.
	ctx context.Context
	// parent is the caller context, typically from signal.NotifyContext.
	parent context.Context
}

// NewSafeGroup derives the group context from ctx.
func NewSafeGroup(ctx context.Context) *SafeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &SafeGroup{group: group, ctx: groupCtx, parent: ctx}
}

// Context returns the group context handed to workers.
func (sg *SafeGroup) Context() context.Context {
	return sg.ctx
}

// GoSafe runs fn under name. A panic is logged with its stack and fn is
// started again after a jittered, doubling backoff; a returned error (or
// nil) ends the worker.
func (sg *SafeGroup) GoSafe(name string, fn func(context.Context) error) {
	if sg == nil || sg.group == nil || fn == nil {
		return
	}
	sg.group.Go(func() error {
		backoff := initialRestartBackoff
		for restarts := 0; ; restarts++ {
			if sg.ctx.Err() != nil {
				return nil
			}
			recovered, stack, err := runRecovered(sg.ctx, fn)
			if recovered == nil {
				return err
			}
			log.Error().
				Str("worker", name).
				Int("restarts", restarts).
				Interface("panic", recovered).
				Bytes("stack", stack).
				Msg("worker panicked, restarting")

			select {
			case <-sg.ctx.Done():
				return nil
			case <-time.After(withJitter(backoff)):
			}
			backoff = min(backoff*2, maxRestartBackoff)
		}
	})
}

func runRecovered(ctx context.Context, fn func(context.Context) error) (recovered any, stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered, stack = r, debug.Stack()
		}
	}()
	return nil, nil, fn(ctx)
}

func withJitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return d + time.Duration(time.Now().UnixNano()%half)
}

// WaitOrInterrupt waits for every worker. Once the parent context is done,
// workers get gracePeriod to return before parent.Err() is reported anyway.
func (sg *SafeGroup) WaitOrInterrupt(gracePeriod time.Duration) error {
	if sg == nil || sg.group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- sg.group.Wait() }()

	select {
	case err := <-done:
		return sg.interruptError(err)
	case <-sg.parent.Done():
	}
	if gracePeriod <= 0 {
		return sg.parent.Err()
	}
	timer := time.NewTimer(gracePeriod)
	defer timer.Stop()
	select {
	case err := <-done:
		return sg.interruptError(err)
	case <-timer.C:
		log.Warn().Dur("grace_period", gracePeriod).Msg("workers did not stop in time")
		return sg.parent.Err()
	}
}

// interruptError reports the parent's cancellation instead of the derived
// context errors workers return while shutting down.
func (sg *SafeGroup) interruptError(err error) error {
	if err == nil {
		return nil
	}
	parentErr := sg.parent.Err()
	if parentErr == nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return parentErr
	}
	return err
}
