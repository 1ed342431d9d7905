//go:build !windows

package listener

import (
	"context"
	"fmt"
)

// pageantListener is a platform stub outside Windows: Pageant's message
// window is a Win32 concept with no host-side equivalent elsewhere.
type pageantListener struct {
	Base
	cfg PageantConfig
}

// NewPageantListener returns a Listener whose Run always fails on this platform.
func NewPageantListener(cfg PageantConfig) Listener {
	return &pageantListener{Base: NewBase(), cfg: cfg}
}

func (l *pageantListener) Name() string { return l.cfg.ListenerName }

func (l *pageantListener) Run(_ context.Context, _ DelegateFunc) error {
	return fmt.Errorf("listener %s: pageant windows are not supported on this platform", l.Name())
}
