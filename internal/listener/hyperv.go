package listener

// HypervConfig configures a Hyper-V socket listener (§6 "hvsocket"
// forward-socket kind), used to reach an agent running in the host from a
// guest VM or vice versa. No handshake is required: VmID/ServiceID scoping
// is the authorization boundary, the same role a named pipe's security
// descriptor plays on a single host.
type HypervConfig struct {
	// ListenerName identifies the listener for logging.
	ListenerName string
	// VMID is the Hyper-V partition to bind against, in GUID string form.
	// The well-known value "00000000-0000-0000-0000-000000000000" accepts
	// connections from any partition (HV_GUID_WILDCARD).
	VMID string
	// ServiceID is the GUID identifying this service within the partition.
	ServiceID string
}
