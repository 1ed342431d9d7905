package frame

// Opcode identifies the kind of SSH agent request or reply: the first byte
// of a message payload. Only the opcodes the dispatcher's policy table
// (§4.6) interprets are named here; a request carrying any other value is
// not sent upstream and is answered with a single-byte FAILURE.
const (
	OpFailure             = 5
	OpSuccess             = 6
	OpRequestIdentities   = 11
	OpIdentitiesAnswer    = 12
	OpSignRequest         = 13
	OpSignResponse        = 14
	OpAddIdentity         = 17
	OpRemoveIdentity      = 18
	OpRemoveAllIdentities = 19
)
