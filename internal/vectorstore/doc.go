// Package vectorstore provides the similarity-search backend used by
// the retrieval index: an embedded chromem-go store for single-process
// deployments and a Qdrant gRPC store for external deployments.
//
// The Store interface makes no deletion-visibility guarantee for
// search: after a delete, an implementation may serve stale results
// until its index is rebuilt or persisted. Callers track entry
// validity themselves.
package vectorstore
