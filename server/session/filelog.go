package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLog appends records as JSON lines. The file is created on first use.
type FileLog struct {
	mu   sync.Mutex
	dir  string
	name string
	f    *os.File
}

func NewFileLog(dir, sessionID string, started time.Time) *FileLog {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return &FileLog{
		dir:  dir,
		name: fmt.Sprintf("game_history_%s_%s.jsonl", started.Format("20060102_150405"), short),
	}
}

func (l *FileLog) Path() string { return filepath.Join(l.dir, l.name) }

func (l *FileLog) Append(ctx context.Context, r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", l.dir, err)
		}
		f, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		l.f = f
	}
	_, err = l.f.Write(append(b, '\n'))
	return err
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadFileLog loads every record from a JSONL history file.
func ReadFileLog(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return out, fmt.Errorf("record %d: %w", len(out), err)
		}
		out = append(out, r)
	}
	return out, nil
}
