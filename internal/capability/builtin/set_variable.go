package builtin

import (
	"context"
	"fmt"

	"yqhp/taskflow/internal/capability"
)

// SetVariable creates the set_variable action. It writes "value" under "name"
// into the execution context so later nodes see it.
func SetVariable() capability.Action {
	return capability.Func("set_variable", "Sets a variable in the execution context", func(ctx context.Context, params map[string]any) (*capability.Result, error) {
		name, err := requiredParam[string](params, "name")
		if err != nil {
			// Also support "variableName" as parameter name
			name, err = requiredParam[string](params, "variableName")
			if err != nil {
				return nil, fmt.Errorf("'name' or 'variableName' parameter is required")
			}
		}

		value, ok := params["value"]
		if !ok {
			return nil, fmt.Errorf("'value' parameter is required")
		}

		execCtx, ok := capability.ExecutionContextFrom(ctx)
		if !ok {
			return capability.NewFailureResult("set_variable requires an execution context"), nil
		}
		execCtx.SetValue(name, value)

		return capability.NewSuccessResult(fmt.Sprintf("variable '%s' set to '%v'", name, value), map[string]any{name: value}), nil
	})
}
