package orchestrator

import (
	"fmt"

	"github.com/websoft9/agentbridge/internal/config"
	"github.com/websoft9/agentbridge/internal/listener"
	"github.com/websoft9/agentbridge/internal/upstream"
)

// buildClient constructs the upstream.Client named by s (§6 type table).
func buildClient(s config.Section) (upstream.Client, error) {
	switch s.Type {
	case config.TypeNamedPipe:
		if s.Path == "" {
			return nil, fmt.Errorf("namedpipe client requires path")
		}
		return upstream.NewNamedPipeClient(upstream.NamedPipeConfig{
			ClientName: s.Name,
			Path:       s.Path,
		}), nil
	case config.TypePageant:
		return upstream.NewPageantClient(upstream.PageantConfig{
			ClientName:  s.Name,
			WindowClass: s.WindowClass,
			WindowTitle: s.WindowTitle,
		}), nil
	default:
		return nil, fmt.Errorf("client section has unsupported type %q", s.Type)
	}
}

// buildListener constructs the listener.Listener named by s (§6 type table).
func buildListener(s config.Section) (listener.Listener, error) {
	switch s.Type {
	case config.TypeUnix:
		if s.Path == "" {
			return nil, fmt.Errorf("unix listener requires path")
		}
		return listener.NewUnixListener(listener.UnixConfig{
			ListenerName: s.Name,
			Path:         s.Path,
		}), nil
	case config.TypeNamedPipe:
		if s.Path == "" {
			return nil, fmt.Errorf("namedpipe listener requires path")
		}
		return listener.NewNamedPipeListener(listener.NamedPipeConfig{
			ListenerName: s.Name,
			Path:         s.Path,
		}), nil
	case config.TypeAssuanEmu:
		if s.NoncePath == "" {
			return nil, fmt.Errorf("assuan_emu listener requires nonce_path")
		}
		return listener.NewAssuanListener(listener.AssuanConfig{
			ListenerName: s.Name,
			NoncePath:    s.NoncePath,
		}), nil
	case config.TypeCygwin:
		if s.NoncePath == "" {
			return nil, fmt.Errorf("cygwin listener requires nonce_path")
		}
		return listener.NewCygwinListener(listener.CygwinConfig{
			ListenerName: s.Name,
			NoncePath:    s.NoncePath,
		}), nil
	case config.TypeHyperV:
		if s.VMID == "" || s.ServiceID == "" {
			return nil, fmt.Errorf("hyperv listener requires vmid and service_id")
		}
		return listener.NewHypervListener(listener.HypervConfig{
			ListenerName: s.Name,
			VMID:         s.VMID,
			ServiceID:    s.ServiceID,
		}), nil
	case config.TypePageant:
		return listener.NewPageantListener(listener.PageantConfig{
			ListenerName: s.Name,
			WindowClass:  s.WindowClass,
			WindowTitle:  s.WindowTitle,
		}), nil
	default:
		return nil, fmt.Errorf("listener section has unsupported type %q", s.Type)
	}
}
