package remote

import (
	"context"
	"time"
)

// Pinger is anything that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe reports the store as online when a ping succeeds within Timeout.
type PingProbe struct {
	Pinger  Pinger
	Timeout time.Duration
}

func (p PingProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Pinger.Ping(ctx) == nil
}
