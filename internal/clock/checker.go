package clock

import (
	"context"
	"sync"
	"time"

	"github.com/harmonet/harmonet/internal/logging"
)

// DriftChecker periodically scans the ledger for users whose stored clock
// fell behind their record log and repairs them. The log is authoritative:
// repair always raises the clock to match the log, never the reverse.
type DriftChecker struct {
	ledger   *Ledger
	logger   *logging.Logger
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDriftChecker creates a drift checker scanning at the given interval
func NewDriftChecker(ledger *Ledger, interval time.Duration, logger *logging.Logger) *DriftChecker {
	return &DriftChecker{
		ledger:   ledger,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the background drift scan loop
func (c *DriftChecker) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
	c.logger.Info("Clock drift checker started", "interval", c.interval)
}

// Stop stops the drift checker
func (c *DriftChecker) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info("Clock drift checker stopped")
}

func (c *DriftChecker) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.CheckOnce(ctx); err != nil {
				c.logger.Error("Clock drift scan failed", "error", err)
			}
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CheckOnce scans for drifted users and repairs them, returning the number
// of users repaired.
func (c *DriftChecker) CheckOnce(ctx context.Context) (int, error) {
	rows, err := c.ledger.db.QueryContext(ctx,
		`SELECT u.wallet, u.clock, MAX(r.clock)
		 FROM users u JOIN clock_records r ON r.wallet = u.wallet
		 GROUP BY u.wallet
		 HAVING u.clock < MAX(r.clock)`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type drifted struct {
		wallet    string
		clock     int64
		maxRecord int64
	}
	var found []drifted
	for rows.Next() {
		var d drifted
		if err := rows.Scan(&d.wallet, &d.clock, &d.maxRecord); err != nil {
			return 0, err
		}
		found = append(found, d)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	repaired := 0
	for _, d := range found {
		c.logger.Warn("Clock drift detected, repairing from record log",
			"wallet", d.wallet,
			"stored_clock", d.clock,
			"max_record_clock", d.maxRecord)

		res, err := c.ledger.db.ExecContext(ctx,
			`UPDATE users SET clock = ? WHERE wallet = ? AND clock = ?`,
			d.maxRecord, d.wallet, d.clock)
		if err != nil {
			c.logger.Error("Clock drift repair failed", "wallet", d.wallet, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			repaired++
		}
	}

	if repaired > 0 {
		c.logger.Info("Clock drift repair completed", "repaired_users", repaired)
	}
	return repaired, nil
}
