package testfixtures

import (
	"context"
	"sync/atomic"
)

// Probe is a connectivity probe the test flips by hand.
type Probe struct {
	online atomic.Bool
}

func NewProbe(online bool) *Probe {
	p := &Probe{}
	p.online.Store(online)
	return p
}

func (p *Probe) Online(context.Context) bool { return p.online.Load() }

func (p *Probe) Set(online bool) { p.online.Store(online) }
