package clock

import (
	"context"
	"database/sql"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/rs/zerolog"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, zerolog.Disabled)
	l, err := Open(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func writeN(t *testing.T, l *Ledger, wallet string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := l.RecordWrite(ctx, wallet, "tracks", nil); err != nil {
			t.Fatalf("RecordWrite failed: %v", err)
		}
	}
}

func TestLedger_IncrementAssignsSequentialClocks(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		var got int64
		err := l.RecordWrite(ctx, "0xabc", "tracks", func(tx *sql.Tx, clock int64) error {
			got = clock
			return nil
		})
		if err != nil {
			t.Fatalf("RecordWrite failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected clock %d, got %d", want, got)
		}
	}

	clock, err := l.GetClock(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetClock failed: %v", err)
	}
	if clock != 3 {
		t.Errorf("Expected stored clock 3, got %d", clock)
	}
}

func TestLedger_ConcurrentIncrementsAreGapless(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	const writers = 10
	var mu sync.Mutex
	assigned := make([]int64, 0, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.RecordWrite(ctx, "0xabc", "files", func(tx *sql.Tx, clock int64) error {
				mu.Lock()
				assigned = append(assigned, clock)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("Concurrent RecordWrite failed: %v", err)
			}
		}()
	}
	wg.Wait()

	sort.Slice(assigned, func(i, j int) bool { return assigned[i] < assigned[j] })
	if len(assigned) != writers {
		t.Fatalf("Expected %d assigned clocks, got %d", writers, len(assigned))
	}
	for i, clock := range assigned {
		if clock != int64(i+1) {
			t.Fatalf("Expected clocks 1..%d with no gaps, got %v", writers, assigned)
		}
	}
}

func TestLedger_RollbackLeavesNoTrace(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	writeN(t, l, "0xabc", 2)

	errBoom := sql.ErrTxDone
	err := l.RecordWrite(ctx, "0xabc", "tracks", func(tx *sql.Tx, clock int64) error {
		return errBoom
	})
	if err == nil {
		t.Fatal("Expected RecordWrite to propagate callback error")
	}

	clock, _ := l.GetClock(ctx, "0xabc")
	if clock != 2 {
		t.Errorf("Clock should stay 2 after rollback, got %d", clock)
	}
	maxRecord, _ := l.GetMaxRecordedClock(ctx, "0xabc")
	if maxRecord != 2 {
		t.Errorf("Record log should stay at 2 after rollback, got %d", maxRecord)
	}
}

func TestLedger_GetClock_UnknownUser(t *testing.T) {
	l := testLedger(t)

	clock, err := l.GetClock(context.Background(), "0xmissing")
	if err != nil {
		t.Fatalf("GetClock failed: %v", err)
	}
	if clock != 0 {
		t.Errorf("Unknown user should report clock 0, got %d", clock)
	}
}

func TestLedger_GetClocks_Batch(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	writeN(t, l, "0xaaa", 3)
	writeN(t, l, "0xbbb", 1)

	clocks, err := l.GetClocks(ctx, []string{"0xaaa", "0xbbb", "0xccc"})
	if err != nil {
		t.Fatalf("GetClocks failed: %v", err)
	}
	if clocks["0xaaa"] != 3 || clocks["0xbbb"] != 1 || clocks["0xccc"] != 0 {
		t.Errorf("Unexpected batch clocks: %v", clocks)
	}
}

func TestDriftChecker_RepairsStaleClock(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	writeN(t, l, "0xabc", 5)

	// Simulate corruption: stored clock falls behind the record log
	if _, err := l.db.ExecContext(ctx, `UPDATE users SET clock = 2 WHERE wallet = '0xabc'`); err != nil {
		t.Fatalf("Failed to inject drift: %v", err)
	}

	checker := NewDriftChecker(l, time.Hour, logging.NewWithWriter(io.Discard, zerolog.Disabled))
	repaired, err := checker.CheckOnce(ctx)
	if err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}
	if repaired != 1 {
		t.Errorf("Expected 1 repaired user, got %d", repaired)
	}

	clock, _ := l.GetClock(ctx, "0xabc")
	if clock != 5 {
		t.Errorf("Expected repaired clock 5, got %d", clock)
	}
	// The record log is never shrunk
	maxRecord, _ := l.GetMaxRecordedClock(ctx, "0xabc")
	if maxRecord != 5 {
		t.Errorf("Record log must be untouched, got max %d", maxRecord)
	}
}

func TestDriftChecker_HealthyLedgerUntouched(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	writeN(t, l, "0xabc", 4)

	checker := NewDriftChecker(l, time.Hour, logging.NewWithWriter(io.Discard, zerolog.Disabled))
	repaired, err := checker.CheckOnce(ctx)
	if err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}
	if repaired != 0 {
		t.Errorf("Expected no repairs on healthy ledger, got %d", repaired)
	}
}

func TestDigest_DeterministicAndOrderSensitive(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	writeN(t, l, "0xabc", 5)

	d1, err := l.Digest(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	d2, err := l.Digest(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if d1 != d2 {
		t.Errorf("Digest should be deterministic: %s != %s", d1, d2)
	}

	writeN(t, l, "0xabc", 1)
	d3, _ := l.Digest(ctx, "0xabc")
	if d3 == d1 {
		t.Error("Digest should change when the record log grows")
	}
}

func TestDigest_EmptyUserMatchesEmptyDigest(t *testing.T) {
	l := testLedger(t)

	d, err := l.Digest(context.Background(), "0xnobody")
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if d != EmptyDigest() {
		t.Errorf("Empty user digest %s should equal EmptyDigest %s", d, EmptyDigest())
	}
}

func TestDigestUpTo_MatchesPrefixReplica(t *testing.T) {
	primary := testLedger(t)
	secondary := testLedger(t)
	ctx := context.Background()

	// Primary holds 10 writes, secondary mirrors only the first 6
	writeN(t, primary, "0xabc", 10)
	writeN(t, secondary, "0xabc", 6)

	restricted, err := primary.DigestUpTo(ctx, "0xabc", 6)
	if err != nil {
		t.Fatalf("DigestUpTo failed: %v", err)
	}
	full, err := secondary.Digest(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	if restricted != full {
		t.Errorf("Prefix replica digest mismatch: restricted=%s full=%s", restricted, full)
	}
}

func TestLedger_Stats(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	writeN(t, l, "0xaaa", 3)
	writeN(t, l, "0xbbb", 2)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.UserCount != 2 {
		t.Errorf("Expected 2 users, got %d", stats.UserCount)
	}
	if stats.MaxClock != 3 {
		t.Errorf("Expected max clock 3, got %d", stats.MaxClock)
	}
	if stats.ClockRecordCount != 5 {
		t.Errorf("Expected 5 clock records, got %d", stats.ClockRecordCount)
	}
}
