package audit

import "fmt"

// OpenSink opens the sink named by kind ("jsonl", "sqlite" or "none").
func OpenSink(kind, path string) (Sink, error) {
	switch kind {
	case "", "jsonl":
		return OpenJSONL(path, DefaultMaxJSONLSize)
	case "sqlite":
		return OpenSQLite(path)
	case "none":
		return NopSink{}, nil
	}
	return nil, fmt.Errorf("unknown audit sink %q", kind)
}
