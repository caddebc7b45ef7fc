// Package types defines the core data structures shared by the execution engine
// and the verification engine.
//
// This package contains the fundamental types used throughout taskflow,
// including:
//   - TaskNode definitions and per-node retry policy
//   - ExecutionContext and execution options
//   - NodeOutcome and ExecutionResult
//   - Trace events and progress callbacks
//   - Error kinds used to classify failures
package types
