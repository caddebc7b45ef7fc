package builtin

import (
	"context"
	"errors"
	"sync"

	"yqhp/taskflow/internal/capability"
)

// Fail creates the fail action.
//
// Without "succeed_after" it always fails. With succeed_after=N it fails the
// first N calls sharing the same "key" (default: the node ID) and succeeds
// afterwards, which is handy for exercising retry policies.
func Fail() capability.Action {
	f := &failAction{calls: make(map[string]int64)}
	return capability.Func("fail", "Fails, optionally only for the first N calls", f.invoke)
}

type failAction struct {
	mu    sync.Mutex
	calls map[string]int64
}

func (f *failAction) invoke(ctx context.Context, params map[string]any) (*capability.Result, error) {
	message := optionalParam(params, "message", "simulated failure")

	raw, ok := params["succeed_after"]
	if !ok {
		return nil, errors.New(message)
	}
	limit, err := toInt64(raw)
	if err != nil {
		return nil, err
	}

	key := optionalParam(params, "key", capability.NodeIDFrom(ctx))
	if execCtx, ok := capability.ExecutionContextFrom(ctx); ok {
		key = execCtx.ExecutionID + "/" + key
	}

	f.mu.Lock()
	f.calls[key]++
	n := f.calls[key]
	f.mu.Unlock()

	if n <= limit {
		return nil, errors.New(message)
	}
	return capability.NewSuccessResult("recovered", map[string]any{"calls": n}), nil
}
