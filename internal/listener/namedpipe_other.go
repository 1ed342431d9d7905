//go:build !windows

package listener

import (
	"context"
	"fmt"
)

// namedPipeListener is a platform stub outside Windows.
type namedPipeListener struct {
	Base
	cfg NamedPipeConfig
}

// NewNamedPipeListener returns a Listener whose Run always fails on this platform.
func NewNamedPipeListener(cfg NamedPipeConfig) Listener {
	return &namedPipeListener{Base: NewBase(), cfg: cfg}
}

func (l *namedPipeListener) Name() string { return l.cfg.ListenerName }

func (l *namedPipeListener) Run(_ context.Context, _ DelegateFunc) error {
	return fmt.Errorf("listener %s: named pipes are not supported on this platform", l.Name())
}
