package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"alertbot/internal/alert"
	logx "alertbot/pkg/logx"
)

// fileStore keeps the alert snapshot as one JSON document, replaced
// atomically on every save, and appends audit entries as JSON lines.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	alertPath string
	auditFile *os.File
}

type alertDoc struct {
	SavedAt time.Time   `json:"saved_at"`
	State   alert.State `json:"state"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file storage opened", logx.String("prefix", prefix))
	return &fileStore{log: log, alertPath: prefix + ".alerts.json", auditFile: af}, nil
}

func (s *fileStore) SaveAlerts(ctx context.Context, st alert.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(alertDoc{SavedAt: time.Now().UTC(), State: st}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.alertPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.alertPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileStore) LoadAlerts(ctx context.Context) (alert.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return alert.State{}, false, err
	}
	s.mu.Lock()
	b, err := os.ReadFile(s.alertPath)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return alert.State{}, false, nil
	}
	if err != nil {
		return alert.State{}, false, err
	}
	var doc alertDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return alert.State{}, false, fmt.Errorf("decode %s: %w", s.alertPath, err)
	}
	return doc.State, true, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
