// Package config loads the orchestrator's declarative configuration: a
// YAML document of listener/client sections plus a handful of environment
// overrides, in the same load-dotenv-then-read-env style as the teacher's
// internal/config package.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SectionType names a transport kind (§6 configuration surface).
type SectionType string

const (
	TypeNamedPipe SectionType = "namedpipe"
	TypePageant   SectionType = "pageant"
	TypeUnix      SectionType = "unix"
	TypeAssuanEmu SectionType = "assuan_emu"
	TypeHyperV    SectionType = "hyperv"
	TypeCygwin    SectionType = "cygwin"
)

// Role says whether a section describes a listener the orchestrator runs,
// or an upstream client it dials out to (§6).
type Role string

const (
	RoleListener Role = "listener"
	RoleClient   Role = "client"
)

// Section is one configured listener or client.
type Section struct {
	Name string      `yaml:"name"`
	Type SectionType `yaml:"type"`
	Role Role        `yaml:"role"`

	// Path is the socket/pipe path for unix and namedpipe sections.
	Path string `yaml:"path,omitempty"`

	// WindowClass/WindowTitle locate the Pageant host window (pageant sections).
	WindowClass string `yaml:"window_class,omitempty"`
	WindowTitle string `yaml:"window_title,omitempty"`

	// VMID/ServiceID address a Hyper-V socket endpoint (hyperv sections).
	VMID      string `yaml:"vmid,omitempty"`
	ServiceID string `yaml:"service_id,omitempty"`

	// NoncePath is the rendezvous file path written by assuan_emu and
	// cygwin listener sections. No client section type reads it; a
	// forwarding listener's target rendezvous file is ForwardSocketPath.
	NoncePath string `yaml:"nonce_path,omitempty"`

	// ForwardSocketPath switches a listener section from proxied mode
	// (messages go through the dispatcher) to raw-forwarding mode (bytes
	// are bridged straight to the target named by this path) (§6).
	ForwardSocketPath string `yaml:"forward-socket-path,omitempty"`
}

// General holds orchestrator-wide settings (§6 "general.loglevel").
type General struct {
	LogLevel string `yaml:"loglevel"`
}

// File is the top-level shape of the configuration document.
type File struct {
	General  General   `yaml:"general"`
	Sections []Section `yaml:"sections"`
}

const envLogLevel = "AGENTBRIDGE_LOGLEVEL"

// Load reads and parses the YAML configuration at path, applying any
// environment overrides recognised by the orchestrator. A .env file in the
// working directory is loaded first, matching the teacher's convention of
// godotenv.Load() before reading the process environment.
func Load(path string) (*File, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if level := os.Getenv(envLogLevel); level != "" {
		f.General.LogLevel = level
	}
	if f.General.LogLevel == "" {
		f.General.LogLevel = "info"
	}
	if !validLogLevel(f.General.LogLevel) {
		return nil, fmt.Errorf("config: invalid general.loglevel %q", f.General.LogLevel)
	}

	if len(f.Sections) == 0 {
		return nil, fmt.Errorf("config: no sections defined")
	}

	seen := make(map[string]bool, len(f.Sections))
	for _, s := range f.Sections {
		if s.Name == "" {
			return nil, fmt.Errorf("config: section missing name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("config: duplicate section name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Role != RoleListener && s.Role != RoleClient {
			return nil, fmt.Errorf("config: section %q: invalid role %q", s.Name, s.Role)
		}
	}

	return &f, nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
