package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxJSONLSize is the size above which an existing log is rotated on open.
const DefaultMaxJSONLSize = 50 * 1024 * 1024

// JSONLSink appends one JSON object per line.
type JSONLSink struct {
	file *os.File
	path string
}

// OpenJSONL opens path for appending, rotating it to path.1 first when it
// is larger than maxSize.
func OpenJSONL(path string, maxSize int64) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if err := rotateIfOversized(path, maxSize); err != nil {
		return nil, fmt.Errorf("rotate audit log: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLSink{file: file, path: path}, nil
}

// Write marshals rec and appends it with a single write call.
func (s *JSONLSink) Write(rec Record) error {
	if s.file == nil {
		return errors.New("audit log is closed")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.file.Write(data)
	return err
}

func (s *JSONLSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Sync()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func rotateIfOversized(path string, limit int64) error {
	if limit <= 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil // Nothing to rotate
	}
	if info.Size() <= limit {
		return nil
	}
	return os.Rename(path, path+".1")
}

// ReadJSONL returns the last n records of a JSONL audit file in file order.
// Malformed lines are skipped. n <= 0 returns every record.
func ReadJSONL(path string, n int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
