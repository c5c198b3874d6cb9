package allowance

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Reader reads an ERC-20 allowance
type Reader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Key scopes an allowance reading
type Key struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

// Tracker holds the live allowance for one (token, owner, spender) at a time.
// Reads are tagged with a generation; a read that completes after the key
// changed or after a newer read started is discarded.
type Tracker struct {
	reader Reader
	logger *slog.Logger

	mu    sync.Mutex
	key   Key
	value *big.Int
	gen   uint64
}

// NewTracker creates a tracker over reader
func NewTracker(reader Reader, logger *slog.Logger) *Tracker {
	return &Tracker{reader: reader, logger: logger}
}

// SetKey changes the scope. A different key drops the current reading.
func (t *Tracker) SetKey(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.key == key {
		return
	}
	t.key = key
	t.value = nil
	t.gen++
}

// Value returns the current reading, nil when none has been applied
func (t *Tracker) Value() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.value == nil {
		return nil
	}
	return new(big.Int).Set(t.value)
}

// Refetch reads the allowance for the current key. The result is applied
// only if no newer read or key change happened meanwhile; applied reports that.
func (t *Tracker) Refetch(ctx context.Context) (value *big.Int, applied bool, err error) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	key := t.key
	t.mu.Unlock()

	if key.Spender == (common.Address{}) {
		return nil, false, fmt.Errorf("no spender to read allowance for")
	}

	v, err := t.reader.Allowance(ctx, key.Token, key.Owner, key.Spender)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read allowance: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		t.logger.Debug("discarding stale allowance read", "generation", gen, "current", t.gen)
		return v, false, nil
	}
	t.value = v
	return new(big.Int).Set(v), true, nil
}
