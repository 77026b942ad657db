// Package factory selects and initializes the job store adapter from
// configuration. It does not manage fallback between store kinds.
package factory

import (
	"fmt"
	"strings"

	"github.com/queuectl/queuectl/pkg/config"
	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
	"github.com/queuectl/queuectl/pkg/queue/memory"
	"github.com/queuectl/queuectl/pkg/queue/sqlite"
)

// NewStore creates the job store named by cfg.StoreType.
func NewStore(cfg *config.Config, log logger.Logger) (queue.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreType)) {
	case config.StoreTypeSQLite, "":
		return sqlite.NewStore(sqlite.Config{
			Path:        cfg.StorePath,
			BusyTimeout: cfg.BusyTimeout,
		}, log)
	case config.StoreTypeMemory:
		return memory.NewStore(log)
	default:
		return nil, fmt.Errorf("unsupported store_type %q (supported: sqlite, memory)", cfg.StoreType)
	}
}
