package verify

import (
	"yqhp/taskflow/internal/petri"
)

// Verdict 单个性质的判定结果
type Verdict string

const (
	VerdictPass         Verdict = "PASS"
	VerdictFail         Verdict = "FAIL"
	VerdictInconclusive Verdict = "INCONCLUSIVE"
)

// Property 被检查的性质
type Property string

const (
	PropertyDeadlockFreedom Property = "deadlock_freedom"
	PropertyReachability    Property = "reachability"
	PropertyLiveness        Property = "liveness"
	PropertyBoundedness     Property = "boundedness"
)

// PropertyResult 单个性质的结论。FAIL 时附带出问题的标识和到达它的变迁路径。
type PropertyResult struct {
	Property    Property      `json:"property"`
	Verdict     Verdict       `json:"verdict"`
	Message     string        `json:"message"`
	Marking     petri.Marking `json:"marking,omitempty"`
	Path        []string      `json:"path,omitempty"`
	Places      []string      `json:"places,omitempty"`
	Transitions []string      `json:"transitions,omitempty"`
}

// ValidationReport 一次可达性分析的报告
type ValidationReport struct {
	NetID          string           `json:"net_id"`
	Results        []PropertyResult `json:"results"`
	StatesExplored int              `json:"states_explored"`
	StateBound     int              `json:"state_bound"`
	// Complete 为 false 表示探索因状态上限被截断
	Complete   bool   `json:"complete"`
	BoundError string `json:"bound_error,omitempty"`
	Err        error  `json:"-"`
}

// Result returns the result for property p.
func (r *ValidationReport) Result(p Property) PropertyResult {
	for _, res := range r.Results {
		if res.Property == p {
			return res
		}
	}
	return PropertyResult{Property: p, Verdict: VerdictInconclusive}
}

// Verdict 汇总结论：任一 FAIL 为 FAIL，否则任一 INCONCLUSIVE 为 INCONCLUSIVE，否则 PASS。
func (r *ValidationReport) Verdict() Verdict {
	v := VerdictPass
	for _, res := range r.Results {
		switch res.Verdict {
		case VerdictFail:
			return VerdictFail
		case VerdictInconclusive:
			v = VerdictInconclusive
		}
	}
	return v
}

// Failed reports whether any property failed.
func (r *ValidationReport) Failed() bool {
	return r.Verdict() == VerdictFail
}
