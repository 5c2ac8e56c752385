// Package memory implements the four-tier memory subsystem: short-term
// (working memory, capacity and TTL bounded), long-term (persistent
// knowledge behind a retrieval index), episodic (task execution
// history), and semantic (facts and concepts).
//
// The Manager routes store and recall requests to tiers, composes
// context blocks for tasks, and runs per-tier consolidation. Each tier
// serializes its own bookkeeping; independent tasks may store and
// retrieve concurrently.
package memory
