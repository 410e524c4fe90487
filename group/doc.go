// Package group implements the group-chat core of the Tox protocol: a
// decentralized, founder-signed, peer-to-peer chat room with DHT-based
// discovery, role-based moderation, and a reliable lossless stream layered
// over dual UDP/TCP-relay transport.
//
// # Overview
//
// A Session owns every group a local node currently participates in and
// is the single point where inbound network packets are decoded far
// enough to route them to the right Group:
//
//	sess := group.NewSession(udpTransport)
//
//	g, err := group.NewFounderGroup(1, selfKeys, "Programming Chat",
//	    group.PrivacyPublic, "", udpTransport, relay, discovery, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess.AddGroup(g)
//
// Joining an existing chat starts from the founder's signature key (the
// chat id) instead:
//
//	g := group.NewJoinerGroup(2, selfKeys, chatID, udpTransport, relay, discovery, nil)
//	sess.AddGroup(g)
//	g.InitiateHandshake(founderPeer, group.RequestKindInvite, relayHint)
//
// # Driving a group
//
// The outer messenger is expected to call Session.Tick once per
// wall-clock second; it fans out to every live group's own Tick, which
// performs TCP-channel maintenance, handshake dispatch, retransmission,
// peer timeouts, periodic pings, and the reconnection state machine:
//
//	go func() {
//	    for range time.Tick(time.Second) {
//	        sess.Tick()
//	    }
//	}()
//
// # Messaging
//
//	g.SendMessage("hello everyone", false)
//	g.SendPrivateMessage(peerID, "just for you")
//
// Inbound messages, nick/status changes, and moderation events surface
// through Callbacks, assigned once per group as a plain struct (not a
// setter API) — see the Callbacks type for the full event surface.
//
// # Roles and moderation
//
// Four roles form a strict authority ladder: Founder, Moderator, User,
// Observer. The founder may promote/demote moderators and set any
// group-wide state; moderators may toggle Observer status and kick/ban
// Users; Observers may read but not send. See roles.go for the exact
// permission predicates, and RemovePeer/SetObserver/SetModerator for the
// mutating operations.
//
// # Discovery and relay
//
// Two narrow collaborator interfaces, Discovery and TCPMultiplex, keep
// the group core independent of any one DHT or relay implementation.
// NewRoutingTableDiscovery and NewMultiplexRelay adapt this module's own
// dht.RoutingTable and transport.ConnectionMultiplexer to them.
//
// # Concurrency
//
// The core is single-threaded cooperative: all mutation happens either
// on the caller's goroutine (a public Send*/Set* method) or on whatever
// goroutine calls Tick. Callers embedding a Group in a concurrent program
// must serialize access with their own mutex; nothing here takes one
// internally.
package group
