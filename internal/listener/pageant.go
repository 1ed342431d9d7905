package listener

// PageantConfig configures the Pageant message-window listener (§4.3
// "Pageant window", §6 "pageant"). Unlike the socket-based listeners this
// transport has no accept loop: it owns a hidden window and turns every
// WM_COPYDATA message the window receives into one request/reply exchange.
type PageantConfig struct {
	// ListenerName identifies the listener for logging.
	ListenerName string
	// WindowClass and WindowTitle name the hidden window real Pageant
	// clients look up by FindWindow; both default to "Pageant" when empty,
	// matching the real tool's convention.
	WindowClass string
	WindowTitle string
}
