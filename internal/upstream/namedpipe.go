package upstream

// NamedPipeConfig configures a named-pipe upstream client: open, write the
// request, read exactly one reply, close (§4.2 "Known implementations").
type NamedPipeConfig struct {
	// ClientName is the label used for logging and dispatch ordering.
	ClientName string
	// Path is the pipe path, e.g. `\\.\pipe\openssh-ssh-agent`.
	Path string
}
