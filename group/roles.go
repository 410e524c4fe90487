package group

// Role is a peer's authority level within a group (spec.md §3, §4.7).
// Values are ordered by increasing authority so permission checks can use
// simple comparisons; Observer sits below User even though the transition
// between them is lateral moderation, not a promotion ladder.
type Role uint8

const (
	RoleObserver Role = iota
	RoleUser
	RoleModerator
	RoleFounder
)

// CanSetSharedState reports whether actor may mutate group-wide shared
// state (name, peer cap, privacy, password) — founder only (spec.md §4.7).
func CanSetSharedState(actor Role) bool {
	return actor == RoleFounder
}

// CanSetModerator reports whether actor may add or remove a moderator —
// founder only.
func CanSetModerator(actor Role) bool {
	return actor == RoleFounder
}

// CanSanction reports whether actor may kick or ban target. The founder
// may sanction any Moderator, User or Observer but never itself; a
// moderator may sanction any User or Observer but never another moderator
// or the founder.
func CanSanction(actor, target Role) bool {
	if target == RoleFounder || target == RoleModerator {
		return actor == RoleFounder && target != RoleFounder
	}
	return actor == RoleFounder || actor == RoleModerator
}

// CanToggleObserver reports whether actor may promote a User to Observer
// or demote an Observer back to User — founder or moderator.
func CanToggleObserver(actor Role) bool {
	return actor == RoleFounder || actor == RoleModerator
}

// CanSendMessage reports whether a peer in role r may send a plain/action
// message — Observers are read-only (spec.md §4.7).
func CanSendMessage(r Role) bool {
	return r != RoleObserver
}

// CanSendCustomPacket mirrors CanSendMessage: Observers may not send
// custom packets either.
func CanSendCustomPacket(r Role) bool {
	return r != RoleObserver
}

// CanSetTopic reports whether signerSignPublic is authorized to set the
// topic: the founder, or any key currently in the moderator list
// (spec.md §4.6 invariant 5).
func CanSetTopic(signerSignPublic [32]byte, founderSignPublic [32]byte, mods *ModeratorList) bool {
	if signerSignPublic == founderSignPublic {
		return true
	}
	return mods.Contains(signerSignPublic)
}

// validateClaimedRole re-derives the authoritative role for a peer from
// the currently held shared state and moderator list, demoting impostors
// locally (spec.md §4.7): a peer claiming Founder whose encryption key
// does not match the shared state's founder key, or claiming Moderator
// without an entry in the moderator list, is never trusted beyond User.
func validateClaimedRole(claimed Role, peer ExtendedPublicKey, state *SharedState, mods *ModeratorList) Role {
	switch claimed {
	case RoleFounder:
		if state != nil && peer.EncryptionPublic() == state.Founder.EncryptionPublic() &&
			peer.SignaturePublic() == state.Founder.SignaturePublic() {
			return RoleFounder
		}
		return RoleUser
	case RoleModerator:
		if mods != nil && mods.Contains(peer.SignaturePublic()) {
			return RoleModerator
		}
		return RoleUser
	default:
		return claimed
	}
}
