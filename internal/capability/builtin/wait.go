package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"yqhp/taskflow/internal/capability"
)

// Wait creates the wait action. It blocks for the requested duration or until
// ctx is done.
func Wait(clock clockwork.Clock) capability.Action {
	return capability.Func("wait", "Waits for a specified duration", func(ctx context.Context, params map[string]any) (*capability.Result, error) {
		ms, err := getDuration(params)
		if err != nil {
			return nil, err
		}

		timer := clock.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.Chan():
			return capability.NewSuccessResult(fmt.Sprintf("waited %d ms", ms), map[string]any{"waited_ms": ms}), nil
		}
	})
}

// getDuration extracts the duration in milliseconds from params.
func getDuration(params map[string]any) (int64, error) {
	if d, ok := params["duration"]; ok {
		return toInt64(d)
	}
	if d, ok := params["ms"]; ok {
		return toInt64(d)
	}
	if d, ok := params["seconds"]; ok {
		sec, err := toInt64(d)
		if err != nil {
			return 0, err
		}
		return sec * 1000, nil
	}
	return 0, fmt.Errorf("'duration' or 'ms' or 'seconds' parameter is required")
}
