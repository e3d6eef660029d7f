package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"intentLedger/internal/model"
)

// JSONLJournal appends activity records to a JSONL file.
type JSONLJournal struct {
	path string
	mu   sync.Mutex
}

func NewJSONLJournal(path string) *JSONLJournal {
	return &JSONLJournal{path: path}
}

// Record appends rec as one JSON line.
func (j *JSONLJournal) Record(ctx context.Context, rec model.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write activity: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// ReadJSONL loads every record from a journal file, oldest first.
func ReadJSONL(path string) ([]model.ActivityRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var out []model.ActivityRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec model.ActivityRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("decode activity line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return out, nil
}

// MemoryJournal keeps records in memory.
type MemoryJournal struct {
	mu      sync.Mutex
	records []model.ActivityRecord
}

func (m *MemoryJournal) Record(ctx context.Context, rec model.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of what was recorded.
func (m *MemoryJournal) Records() []model.ActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ActivityRecord(nil), m.records...)
}
