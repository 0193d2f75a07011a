package storage

import (
	"context"
	"fmt"
	"strings"

	"alertbot/internal/alert"
	logx "alertbot/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	// SaveAlerts replaces the persisted alert state.
	SaveAlerts(ctx context.Context, st alert.State) error
	// LoadAlerts returns the persisted state; ok is false when nothing was
	// saved yet.
	LoadAlerts(ctx context.Context) (st alert.State, ok bool, err error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when storage
// is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
