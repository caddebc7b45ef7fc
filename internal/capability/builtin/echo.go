package builtin

import (
	"context"
	"fmt"

	"yqhp/taskflow/internal/capability"
)

// Echo creates the echo action. It returns "message" when present, otherwise
// the full parameter map.
func Echo() capability.Action {
	return capability.Func("echo", "Returns its parameters as output", func(ctx context.Context, params map[string]any) (*capability.Result, error) {
		if msg, ok := params["message"]; ok {
			return capability.NewSuccessResult(fmt.Sprintf("%v", msg), msg), nil
		}
		return capability.NewSuccessResult("echo", params), nil
	})
}
