// Package httpapi exposes the task and memory surface over HTTP: task
// submission and polling, memory store/recall, system status, health
// and Prometheus metrics.
package httpapi
