package workers

import (
	"context"
	"time"

	"github.com/ledgerquest/ledgerquest/pkg/battles"
	"github.com/ledgerquest/ledgerquest/pkg/log"
)

// BattleSweepWorker periodically marks inactive battles abandoned. The
// sweep is advisory: the engine applies the same timeout lazily on
// access, so a missed tick never changes observable behavior.
type BattleSweepWorker struct {
	engine   *battles.Engine
	interval time.Duration
}

type NewBattleSweepWorkerOptions struct {
	Engine   *battles.Engine
	Interval time.Duration
}

func NewBattleSweepWorker(opts NewBattleSweepWorkerOptions) *BattleSweepWorker {
	return &BattleSweepWorker{
		engine:   opts.Engine,
		interval: opts.Interval,
	}
}

func (w *BattleSweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := w.engine.SweepAbandoned(ctx)
			if err != nil {
				log.Error("Failed to sweep stale battles: %v", err)
				continue
			}
			if swept > 0 {
				log.Info("Abandoned %d inactive battles", swept)
			}
		}
	}
}
