// Package events publishes task lifecycle transitions to NATS so
// external consumers can stream task progress without polling the API.
package events
