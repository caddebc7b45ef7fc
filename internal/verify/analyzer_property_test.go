package verify

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"yqhp/taskflow/internal/petri"
)

// intentsFrom 由随机整数序列构造意图列表：余数决定连接方式。
func intentsFrom(codes []int) []petri.Intent {
	connectives := []petri.Connective{petri.ConnectiveSequential, petri.ConnectiveParallel, petri.ConnectiveChoice}
	intents := make([]petri.Intent, len(codes))
	for i, c := range codes {
		intents[i] = petri.Intent{
			Action:     fmt.Sprintf("act%d", c%4),
			Connective: connectives[c%3],
			Condition:  fmt.Sprintf("c%d", i),
		}
	}
	return intents
}

// TestAnalyzerDeterminismProperty 相同的网和上限总是得到相同的报告。
func TestAnalyzerDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("analysis is reproducible", prop.ForAll(
		func(codes []int, bound int) bool {
			net, err := petri.BuildFromIntents("random", intentsFrom(codes))
			if err != nil {
				// 同一阶段混用 parallel 和 choice
				return true
			}
			a := NewAnalyzer(Options{StateBound: bound})
			first, err := a.Analyze(context.Background(), net)
			if err != nil {
				return false
			}
			second, err := a.Analyze(context.Background(), net)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOfN(8, gen.IntRange(0, 100)),
		gen.IntRange(1, 50),
	))

	properties.Property("well-formed intent nets never deadlock", prop.ForAll(
		func(codes []int) bool {
			net, err := petri.BuildFromIntents("random", intentsFrom(codes))
			if err != nil {
				return true
			}
			report, err := NewAnalyzer(DefaultOptions()).Analyze(context.Background(), net)
			if err != nil {
				return false
			}
			return report.Result(PropertyDeadlockFreedom).Verdict != VerdictFail &&
				report.Result(PropertyBoundedness).Verdict != VerdictFail
		},
		gen.SliceOfN(6, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
