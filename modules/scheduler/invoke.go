package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
)

// invoke runs task and reports exactly one Outcome to done, whether the task settles
// inline, settles later, or panics. Failures are classified as callback errors.
// An inline settle is reported after task returns, outside its panic recovery.
func invoke(ctx context.Context, task core.AsyncTask, done func(core.Outcome)) {
	var (
		mu      sync.Mutex
		running = true
		settled bool
		pending *core.Outcome
	)
	settle := func(result any, err error) {
		mu.Lock()
		if settled {
			mu.Unlock()
			return
		}
		settled = true
		outcome := outcomeOf(result, err)
		if running {
			pending = &outcome
			mu.Unlock()
			return
		}
		mu.Unlock()
		done(outcome)
	}

	panicErr := runTask(ctx, task, settle)

	mu.Lock()
	running = false
	if panicErr != nil && !settled {
		settled = true
		outcome := outcomeOf(nil, panicErr)
		pending = &outcome
	}
	outcome := pending
	mu.Unlock()

	if outcome != nil {
		done(*outcome)
	}
}

// runTask calls task and converts a panic into an error.
func runTask(ctx context.Context, task core.AsyncTask, settle core.Settle) (panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			panicErr = fmt.Errorf("%w: %w", ErrCallbackPanicked, err)
		}
	}()
	task(ctx, settle)
	return nil
}

func outcomeOf(result any, err error) core.Outcome {
	if err != nil {
		return core.Outcome{Err: errors.CallbackError(err)}
	}
	return core.Outcome{Result: result}
}
