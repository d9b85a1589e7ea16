// Package corpus defines the document model shared by the retrieval branches
// and a directory loader used by the CLI ingestion path.
package corpus

import (
	"sort"
)

// Document is a retrievable passage. The engine treats documents as read-only
// and keyed by ID; ownership stays with the external corpus.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// SanitizeMetadata returns a copy of md containing only primitive values
// (strings, booleans, integers, floats). Dynamic payloads from the vector
// store are narrowed to this fixed shape at the adapter boundary; anything
// else is dropped.
func SanitizeMetadata(md map[string]any) map[string]any {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MetadataKeys returns the sorted keys of a metadata map.
// Result ordering matters for deterministic output and tests.
func MetadataKeys(md map[string]any) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
