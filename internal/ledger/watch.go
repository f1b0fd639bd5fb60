package ledger

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

// DefaultWatchInterval is how often dashboards re-fetch their checkups.
const DefaultWatchInterval = 30 * time.Second

// Watch re-fetches the requester's checkups every interval and sends a
// snapshot whenever the list changed. The first snapshot is sent right away.
// The channel is closed when ctx is done.
func (l *Ledger) Watch(ctx context.Context, req Requester, interval time.Duration) (<-chan models.CheckupList, error) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	first, err := l.ListMine(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan models.CheckupList, 1)
	out <- *first

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := fingerprint(first)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			list, err := l.ListMine(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.log.Warn("watch refresh failed", zap.String("userId", req.ID.Hex()), zap.Error(err))
				continue
			}

			fp := fingerprint(list)
			if fp == last {
				continue
			}
			last = fp

			select {
			case out <- *list:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func fingerprint(list *models.CheckupList) string {
	var b strings.Builder
	for _, c := range list.Checkups {
		b.WriteString(c.ID.Hex())
		b.WriteByte(':')
		b.WriteString(string(c.Status))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(c.Version, 10))
		b.WriteByte(';')
	}
	return b.String()
}
