package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/pkg/types"
)

// TestExecuteTerminationProperty 随机 DAG 中每个节点恰好得到一个终态，
// 成功节点的依赖全部成功，跳过节点至少有一个上游失败或跳过。
func TestExecuteTerminationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "nodes")
		nodes := make([]types.TaskNode, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("n%d", i)
			action := "ok"
			if rapid.Float64Range(0, 1).Draw(rt, "fail_"+id) < 0.25 {
				action = "boom"
			}
			var deps []string
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("edge_%d_%d", j, i)) {
					deps = append(deps, fmt.Sprintf("n%d", j))
				}
			}
			nodes[i] = types.TaskNode{ID: id, Action: action, DependsOn: deps}
		}
		failFast := rapid.Bool().Draw(rt, "fail_fast")
		limit := rapid.IntRange(1, 4).Draw(rt, "limit")

		g, err := dag.Build("prop", nodes, "")
		if err != nil {
			rt.Fatalf("build: %v", err)
		}
		e := New(testConfig(), newTestRegistry(&calls{}))
		execCtx := types.NewExecutionContext().WithOptions(types.ExecutionOptions{FailFast: failFast, MaxConcurrency: limit})
		result, err := e.Execute(context.Background(), g, execCtx)
		if err != nil {
			rt.Fatalf("execute: %v", err)
		}

		if len(result.Outcomes) != n || len(result.Order) != n {
			rt.Fatalf("expected %d outcomes, got %d (order %d)", n, len(result.Outcomes), len(result.Order))
		}
		seen := make(map[string]bool, n)
		for _, id := range result.Order {
			if seen[id] {
				rt.Fatalf("node %s recorded twice", id)
			}
			seen[id] = true
		}

		anyFailed := false
		for _, node := range nodes {
			o := result.Outcomes[node.ID]
			switch o.Status {
			case types.OutcomeSuccess:
				if node.Action != "ok" {
					rt.Fatalf("node %s succeeded with failing action", node.ID)
				}
				for _, dep := range node.DependsOn {
					if !result.Outcomes[dep].IsSuccess() {
						rt.Fatalf("node %s succeeded but dependency %s did not", node.ID, dep)
					}
				}
			case types.OutcomeFailed:
				anyFailed = true
				if node.Action != "boom" {
					rt.Fatalf("node %s failed with succeeding action", node.ID)
				}
			case types.OutcomeSkipped:
				if o.Reason == types.SkipReasonFailFast {
					if !failFast {
						rt.Fatalf("node %s skipped by fail-fast without fail-fast", node.ID)
					}
					continue
				}
				blocked := false
				for _, dep := range node.DependsOn {
					if !result.Outcomes[dep].IsSuccess() {
						blocked = true
					}
				}
				if !blocked {
					rt.Fatalf("node %s skipped but all dependencies succeeded", node.ID)
				}
			}
		}

		want := types.ExecutionStatusCompleted
		if anyFailed {
			want = types.ExecutionStatusFailed
		}
		if result.Status != want {
			rt.Fatalf("status %s, want %s", result.Status, want)
		}
	})
}

// TestBackoffDelayProperty 退避延迟随尝试次数单调不减，且不超过上限。
func TestBackoffDelayProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("delay is monotonic in attempt", prop.ForAll(
		func(baseMs int64, multiplier float64, attempt int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			return CalculateBackoffDelay(base, attempt+1, multiplier, 0) >= CalculateBackoffDelay(base, attempt, multiplier, 0)
		},
		gen.Int64Range(1, 5000),
		gen.Float64Range(1, 4),
		gen.IntRange(1, 20),
	))

	properties.Property("delay never exceeds max delay", prop.ForAll(
		func(baseMs int64, multiplier float64, attempt int, maxMs int64) bool {
			maxDelay := time.Duration(maxMs) * time.Millisecond
			return CalculateBackoffDelay(time.Duration(baseMs)*time.Millisecond, attempt, multiplier, maxDelay) <= maxDelay
		},
		gen.Int64Range(1, 5000),
		gen.Float64Range(1, 4),
		gen.IntRange(1, 60),
		gen.Int64Range(1, 60000),
	))

	properties.Property("first attempt waits the base delay", prop.ForAll(
		func(baseMs int64, multiplier float64) bool {
			base := time.Duration(baseMs) * time.Millisecond
			return CalculateBackoffDelay(base, 1, multiplier, 0) == base
		},
		gen.Int64Range(1, 5000),
		gen.Float64Range(1, 4),
	))

	properties.TestingRun(t)
}
