// Package planner turns a goal into an ordered list of dependent
// subtasks. Plan text comes from the completion capability; a JSON
// object embedded in the response is parsed into steps, and any parse
// failure falls back to a single-step plan wrapping the input verbatim,
// so planning never fails the control loop.
package planner
