// Package embeddings provides the embedding capability behind the
// retrieval index: a local FastEmbed (ONNX) provider for offline use
// and an OpenAI-compatible provider (OpenAI, TEI) via langchaingo.
package embeddings
