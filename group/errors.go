package group

import "errors"

// Sentinel errors surfaced to callers, following the error taxonomy of
// spec.md §7. Malformed-input and authentication-failure conditions are
// deliberately not sentinel errors: those are dropped silently at the
// point of detection and never propagate to a caller.
var (
	// ErrBadGroupNumber is returned when a group id does not resolve to a
	// known group within the session.
	ErrBadGroupNumber = errors.New("group: unknown group number")

	// ErrBadPeerID is returned when a peer id does not resolve to a known
	// peer within a group's peer table.
	ErrBadPeerID = errors.New("group: unknown peer id")

	// ErrBadArgument covers length/content validation failures on public
	// entry points (name, password, nick, topic, message too long/short).
	ErrBadArgument = errors.New("group: invalid argument")

	// ErrPermissionDenied is returned when the local role lacks the
	// authority for the requested operation (spec.md §4.7).
	ErrPermissionDenied = errors.New("group: permission denied")

	// ErrNetworkSendFailure wraps a transient transport error from the
	// direct or relayed send path.
	ErrNetworkSendFailure = errors.New("group: network send failure")

	// ErrGroupFull is returned when a join attempt would exceed the
	// shared state's configured peer cap.
	ErrGroupFull = errors.New("group: group is full")

	// ErrWrongPassword is returned for local password validation prior to
	// emitting an InviteRequest; the wire-level rejection uses
	// InviteResponseReject instead.
	ErrWrongPassword = errors.New("group: wrong password")

	// ErrNotFounder is returned when an operation reserved for the
	// founder is attempted by any other peer.
	ErrNotFounder = errors.New("group: caller is not the founder")

	// ErrAlreadyPresent is returned by peer table Add when the public key
	// is already known.
	ErrAlreadyPresent = errors.New("group: peer already present")

	// ErrGroupDisconnected is returned when an operation requires a
	// Connected group but the group is Disconnected or Closing.
	ErrGroupDisconnected = errors.New("group: group is disconnected")

	// errDuplicateNick signals a nick collision detected by the peer
	// table; the caller must delete the offending peer (spec.md §4.4,
	// testable property 6).
	errDuplicateNick = errors.New("group: duplicate nick")
)

// RejectReason enumerates the typed reject codes carried in an
// InviteResponseReject packet (spec.md §6, §7 "policy violation").
type RejectReason uint8

const (
	RejectUnknown RejectReason = iota
	RejectInvalidPassword
	RejectGroupFull
	RejectBanned
	RejectNickTaken
	RejectPrivacyMismatch
)

func (r RejectReason) String() string {
	switch r {
	case RejectInvalidPassword:
		return "invalid password"
	case RejectGroupFull:
		return "group full"
	case RejectBanned:
		return "banned"
	case RejectNickTaken:
		return "nick already taken"
	case RejectPrivacyMismatch:
		return "joined as wrong privacy mode"
	default:
		return "unknown"
	}
}
