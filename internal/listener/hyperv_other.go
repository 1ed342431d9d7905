//go:build !windows

package listener

import (
	"context"
	"fmt"
)

// hypervListener is a platform stub outside Windows: Hyper-V sockets are a
// Windows/Linux-guest-integration-component concept with no host-side
// equivalent on other platforms.
type hypervListener struct {
	Base
	cfg HypervConfig
}

// NewHypervListener returns a Listener whose Run always fails on this platform.
func NewHypervListener(cfg HypervConfig) Listener {
	return &hypervListener{Base: NewBase(), cfg: cfg}
}

func (l *hypervListener) Name() string { return l.cfg.ListenerName }

func (l *hypervListener) Run(_ context.Context, _ DelegateFunc) error {
	return fmt.Errorf("listener %s: hyper-v sockets are not supported on this platform", l.Name())
}
