// Package critic turns raw model output into a structured quality
// verdict: a score clamped to [0,10], an explicit pass/fail flag, and
// an actionable improvement list. Parse failures never surface; absent
// fields are substituted with defaults so critiquing cannot break the
// control loop.
package critic
