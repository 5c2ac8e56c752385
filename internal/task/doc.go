// Package task defines the task model shared by the planner, executor,
// critic, memory, and orchestrator packages.
//
// A Task is owned by the caller and passed by reference through the
// pipeline. The orchestrator is the sole mutator of status, result,
// error, and retry count during a run; external readers may poll status
// and request cancellation between phases.
package task
