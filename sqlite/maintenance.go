package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/metrics"
)

// maintenance periodically runs PRAGMA optimize against a writable Conn.
type maintenance struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func startMaintenance(c *Conn, interval time.Duration) *maintenance {
	var m = &maintenance{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go m.serve(c, interval)
	return m
}

func (m *maintenance) serve(c *Conn, interval time.Duration) {
	defer close(m.doneCh)

	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}

		if err := c.Optimize(context.Background()); err != nil {
			metrics.MaintenanceRunsTotal.WithLabelValues(metrics.Fail).Inc()
			log.WithFields(log.Fields{"err": err, "path": c.path}).Warn("database maintenance failed")
		} else {
			metrics.MaintenanceRunsTotal.WithLabelValues(metrics.Ok).Inc()
		}
	}
}

// stop the maintenance loop, blocking until it exits.
func (m *maintenance) stop() {
	close(m.stopCh)
	<-m.doneCh
}

// Optimize runs PRAGMA optimize, which keeps query planner statistics of
// long-lived databases current.
func (c *Conn) Optimize(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return errors.WithMessage(err, "PRAGMA optimize")
	}
	return nil
}
