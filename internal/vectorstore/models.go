package vectorstore

import (
	"fmt"
	"strconv"
)

// Document is a unit of text to be embedded and stored.
type Document struct {
	// ID is the unique identifier within the collection.
	ID string

	// Content is the text to embed.
	Content string

	// Metadata holds key/value pairs usable as exact-match filters.
	Metadata map[string]any
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]any
}

// metadataToString converts metadata values to the string form used by
// backends with string-only payload filters.
func metadataToString(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			out[k] = strconv.Itoa(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// metadataFromString widens a string metadata map back to map[string]any.
func metadataFromString(metadata map[string]string) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
