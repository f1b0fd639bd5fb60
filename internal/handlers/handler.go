package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/directory"
	"github.com/harentsoaR/onlyfix-api/internal/ledger"
	"github.com/harentsoaR/onlyfix-api/internal/metrics"
	"github.com/harentsoaR/onlyfix-api/internal/utils"
)

// Handler holds everything the HTTP endpoints need. Handlers are methods on
// it so they share one set of dependencies.
type Handler struct {
	Directory *directory.Directory
	Ledger    *ledger.Ledger
	Tokens    *utils.TokenService
	Metrics   *metrics.Collector
	Log       *zap.Logger

	// PollInterval is the default refresh period of dashboard streams.
	PollInterval time.Duration
	// Ping reports storage health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error

	now func() time.Time
}

func NewHandler(dir *directory.Directory, led *ledger.Ledger, tokens *utils.TokenService, m *metrics.Collector, log *zap.Logger) *Handler {
	return &Handler{
		Directory:    dir,
		Ledger:       led,
		Tokens:       tokens,
		Metrics:      m,
		Log:          log,
		PollInterval: ledger.DefaultWatchInterval,
		now:          time.Now,
	}
}
