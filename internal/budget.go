package internal

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Rate-limit response headers reported on authenticated calls.
const (
	headerRateUsed      = "X-Ratelimit-Used"
	headerRateRemaining = "X-Ratelimit-Remaining"
	headerRateReset     = "X-Ratelimit-Reset"
)

// DefaultSafetyMargin is added to every budget wait.
const DefaultSafetyMargin = time.Second

// initialRemaining mirrors the budget Reddit grants a fresh OAuth client.
const initialRemaining = 60

// Budget tracks the request allowance reported by the API.
type Budget struct {
	mu           sync.Mutex
	used         int
	remaining    int
	resetSeconds int
	// waited is set once a wait for the current window completed; the next
	// response header replaces it with fresh counters.
	waited bool

	clock  Clock
	margin time.Duration
	logger *slog.Logger
}

// BudgetSnapshot is a point-in-time copy of the budget counters.
type BudgetSnapshot struct {
	Used         int
	Remaining    int
	ResetSeconds int
}

// NewBudget returns a budget with the default allowance.
func NewBudget(clock Clock, margin time.Duration, logger *slog.Logger) *Budget {
	if clock == nil {
		clock = SystemClock{}
	}
	if margin < 0 {
		margin = 0
	}
	return &Budget{
		remaining: initialRemaining,
		clock:     clock,
		margin:    margin,
		logger:    orDiscard(logger),
	}
}

// Snapshot returns the current counters.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetSnapshot{Used: b.used, Remaining: b.remaining, ResetSeconds: b.resetSeconds}
}

// Exhausted reports whether the next call must wait for the window to reset.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exhaustedLocked()
}

func (b *Budget) exhaustedLocked() bool {
	return b.remaining <= 0 && !b.waited
}

// Update replaces the counters with the values from an authenticated
// response. Responses missing any of the three headers leave the budget as is.
func (b *Budget) Update(header http.Header) {
	usedHeader := header.Get(headerRateUsed)
	remainingHeader := header.Get(headerRateRemaining)
	resetHeader := header.Get(headerRateReset)
	if usedHeader == "" || remainingHeader == "" || resetHeader == "" {
		return
	}

	used, errUsed := strconv.ParseFloat(usedHeader, 64)
	remaining, errRemaining := strconv.ParseFloat(remainingHeader, 64)
	reset, errReset := strconv.ParseFloat(resetHeader, 64)
	if errUsed != nil || errRemaining != nil || errReset != nil {
		b.logger.Warn("ignoring malformed rate-limit headers",
			"used", usedHeader, "remaining", remainingHeader, "reset", resetHeader)
		return
	}

	b.mu.Lock()
	b.used = clampInt(used)
	b.remaining = clampInt(math.Floor(remaining))
	b.resetSeconds = clampInt(reset)
	b.waited = false
	b.mu.Unlock()
}

// Wait suspends the caller for the reset window plus the safety margin when
// the budget is exhausted. It returns immediately otherwise.
func (b *Budget) Wait(ctx context.Context) error {
	b.mu.Lock()
	if !b.exhaustedLocked() {
		b.mu.Unlock()
		return nil
	}
	delay := time.Duration(b.resetSeconds)*time.Second + b.margin
	b.mu.Unlock()

	b.logger.Info("rate budget exhausted, waiting for reset", "delay", delay)
	if err := b.clock.Sleep(ctx, delay); err != nil {
		return err
	}

	b.mu.Lock()
	b.waited = true
	b.mu.Unlock()
	return nil
}

func clampInt(v float64) int {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
