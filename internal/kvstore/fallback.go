package kvstore

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Fallback fronts a durable backend with an in-memory copy. After the first
// durable failure it switches to memory-only for the rest of the process;
// the switch is one-way. Storage errors never reach the caller.
type Fallback struct {
	durable  Store
	memory   *Memory
	degraded atomic.Bool
	logger   zerolog.Logger
}

// NewFallback wraps durable. A nil durable store starts in memory mode, which
// is how an unavailable backend at startup is represented.
func NewFallback(durable Store, logger zerolog.Logger) *Fallback {
	f := &Fallback{
		durable: durable,
		memory:  NewMemory(),
		logger:  logger.With().Str("component", "kvstore").Logger(),
	}
	if durable == nil {
		f.degraded.Store(true)
	}
	return f
}

// Degraded reports whether the store has fallen back to memory.
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !f.Degraded() {
		v, ok, err := f.durable.Get(ctx, key)
		if err == nil {
			if ok {
				_ = f.memory.Set(ctx, key, v)
			}
			return v, ok, nil
		}
		f.degrade("get", key, err)
	}
	return f.memory.Get(ctx, key)
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte) error {
	_ = f.memory.Set(ctx, key, value)
	if !f.Degraded() {
		if err := f.durable.Set(ctx, key, value); err != nil {
			f.degrade("set", key, err)
		}
	}
	return nil
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	_ = f.memory.Delete(ctx, key)
	if !f.Degraded() {
		if err := f.durable.Delete(ctx, key); err != nil {
			f.degrade("delete", key, err)
		}
	}
	return nil
}

func (f *Fallback) degrade(op, key string, err error) {
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.Warn().Err(err).Str("op", op).Str("key", key).
			Msg("durable store failed, continuing in memory for this run")
	}
}
