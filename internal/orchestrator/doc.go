// Package orchestrator drives tasks through the planning, execution and
// critique phases, gating bounded retries on critique outcomes and
// recording every finished run into episodic memory.
package orchestrator
