// Package executor runs planned steps: direct execution through the
// completion capability, tool invocation through the tool runner, and a
// bounded-retry wrapper with exponential backoff for transient
// failures.
package executor
