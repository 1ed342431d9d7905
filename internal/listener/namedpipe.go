package listener

// NamedPipeConfig configures a Windows named-pipe listener (§6 "named-pipe"
// forward-socket kind). No handshake is required: the pipe's own security
// descriptor is the authorization boundary, mirroring ssh-agent.exe.
type NamedPipeConfig struct {
	// ListenerName identifies the listener for logging.
	ListenerName string
	// Path is the pipe path, e.g. `\\.\pipe\openssh-ssh-agent`.
	Path string
}
