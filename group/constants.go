package group

import "time"

// Wire size constants, spec.md §6.
const (
	ChatIDSize           = 32
	ExtendedPublicKeySize = 64
	ExtendedSecretKeySize = 64
	SignatureSize        = 64
	NonceSize            = 24
	MACSize              = 16
	MaxPacketSize        = 65507

	MaxNickLength        = 128
	MaxGroupNameLength   = 128
	MaxPasswordLength    = 32
	MaxTopicLength       = 512
	MaxPartMessageLength = 256

	MaxModerators = 64
	MaxSanctions  = 1024
)

// Reliability and timing constants, spec.md §4.3, §4.4, §4.9.
const (
	// ringSize bounds the send/receive reliability windows (§4.3).
	ringSize = 256

	// retransmitInterval is the minimum age a pending frame must reach
	// before the periodic driver retransmits it.
	retransmitInterval = 1 * time.Second

	// pingInterval is the spacing between periodic Ping probes.
	pingInterval = 8 * time.Second

	// confirmedPeerTimeout is how long a confirmed peer may go unheard
	// from before it is dropped as timed out.
	confirmedPeerTimeout = 60 * time.Second

	// unconfirmedPeerTimeout bounds peers still mid-handshake.
	unconfirmedPeerTimeout = 10 * time.Second

	// directPathStaleAfter bounds how long a "recent direct receive"
	// timestamp is trusted as evidence the direct UDP path is reachable.
	directPathStaleAfter = 30 * time.Second

	// newConnectionMeterMax is the handshake-acceptance token bucket
	// ceiling (§4.2's "new-connection meter").
	newConnectionMeterMax = 10

	// reconnectBackoff is how long Connecting waits for success before
	// the group falls back to Disconnected (§4.9).
	reconnectBackoff = 20 * time.Second

	// recentConfirmedPeersRingSize bounds the ring of recently confirmed
	// peers used to admit private-chat reconnects (§4.4).
	recentConfirmedPeersRingSize = 32

	// recentTCPContactsRingSize bounds a connection's recently used relay
	// contact ring (§3, "Connection record").
	recentTCPContactsRingSize = 8
)

// sharedStateVersionUnset is the sentinel for "no shared-state version has
// been sent on this connection yet" (spec.md §9 open question).
const sharedStateVersionUnset uint32 = 0xFFFFFFFF
