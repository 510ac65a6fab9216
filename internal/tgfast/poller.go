package tgfast

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Handler processes one update. It runs on its own goroutine so a slow
// handler never stalls the poll loop.
type Handler func(ctx context.Context, upd Update)

// Poller drives getUpdates long polling and fans updates out to the handler.
type Poller struct {
	client     *Client
	handler    Handler
	timeoutSec int
	logger     *zap.Logger

	offset int64
}

func NewPoller(client *Client, handler Handler, timeoutSec int, logger *zap.Logger) *Poller {
	if timeoutSec <= 0 {
		timeoutSec = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{client: client, handler: handler, timeoutSec: timeoutSec, logger: logger}
}

// Run blocks until ctx is cancelled. Transient API errors are logged and
// retried after a short pause.
func (p *Poller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("tg_poll_error", zap.Error(err))
			if sleepErr := sleepCtx(ctx, 2*time.Second); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
			u := upd
			go p.handler(ctx, u)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
