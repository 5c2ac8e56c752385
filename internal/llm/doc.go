// Package llm provides the completion capability: an opaque
// complete(messages) -> text call backed by the Anthropic Messages API
// or any OpenAI-compatible endpoint via langchaingo.
//
// Errors are classified as transient (timeouts, connection failures,
// 429s, 5xx) or permanent. Callers retry transient errors with their
// own bounded-retry policy; permanent errors fail the phase
// immediately.
package llm
