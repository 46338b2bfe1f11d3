package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sojoswap/internal/model"
)

// JsonlStorage writes log records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.path, len(logs), func(i int) interface{} { return logs[i] })
}

// JsonlEventStorage writes typed events and decode errors to two JSONL files.
type JsonlEventStorage struct {
	eventsPath string
	errorsPath string
	mu         sync.Mutex
}

func NewJsonlEventStorage(eventsPath, errorsPath string) *JsonlEventStorage {
	return &JsonlEventStorage{eventsPath: eventsPath, errorsPath: errorsPath}
}

// PutEventBatch appends typed events as JSON lines.
func (s *JsonlEventStorage) PutEventBatch(events []model.TypedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.eventsPath, len(events), func(i int) interface{} { return events[i] })
}

// PutDecodeErrors appends decode errors as JSON lines. An empty errors path
// discards them.
func (s *JsonlEventStorage) PutDecodeErrors(errs []model.DecodeError) error {
	if s.errorsPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.errorsPath, len(errs), func(i int) interface{} { return errs[i] })
}

func appendLines(path string, n int, item func(int) interface{}) error {
	if n == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i := 0; i < n; i++ {
		line, err := json.Marshal(item(i))
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// WriteTokens replaces path with one line per token.
func WriteTokens(path string, tokens []model.TokenMeta) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset tokens file: %w", err)
	}
	return appendLines(path, len(tokens), func(i int) interface{} { return tokens[i] })
}

// ReadTokens loads token metadata written by WriteTokens.
func ReadTokens(path string) ([]model.TokenMeta, error) {
	var out []model.TokenMeta
	err := readLines(path, func(raw []byte) error {
		var meta model.TokenMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	})
	return out, err
}

// ReadTypedEvents loads typed event records from a JSONL file, skipping
// blank lines.
func ReadTypedEvents(path string) ([]model.TypedEventRecord, error) {
	var out []model.TypedEventRecord
	err := readLines(path, func(raw []byte) error {
		var rec model.TypedEventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func readLines(path string, fn func(raw []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := fn(raw); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
