package group

import (
	"time"

	"github.com/opd-ai/toxcore/dht"
	"github.com/opd-ai/toxcore/transport"
)

// Discovery is the narrow DHT collaborator interface the group core
// consumes (spec.md §6): bootstrap is implicit in the routing table
// already being populated by the outer messenger, so only announce and
// lookup are exposed here.
type Discovery interface {
	Announce(chatIDHash uint32, name string, privacy Privacy) error
	Unannounce(chatIDHash uint32)
	Lookup(chatIDHash uint32) (*dht.GroupAnnouncement, bool)
}

// routingTableDiscovery adapts dht.RoutingTable and its group-storage
// extensions to Discovery (spec.md §6 "DHT: bootstrap, announce, lookup").
type routingTableDiscovery struct {
	table     *dht.RoutingTable
	storage   *dht.GroupStorage
	transport transport.Transport
}

// NewRoutingTableDiscovery builds a Discovery backed by a live DHT routing
// table, its group-announcement store, and the transport used to reach
// other DHT nodes.
func NewRoutingTableDiscovery(table *dht.RoutingTable, storage *dht.GroupStorage, tr transport.Transport) Discovery {
	return &routingTableDiscovery{table: table, storage: storage, transport: tr}
}

// Announce registers (or re-registers) a public group's presence in the
// DHT. Private groups are never announced (spec.md invariant 7).
func (d *routingTableDiscovery) Announce(chatIDHash uint32, name string, privacy Privacy) error {
	if privacy == PrivacyPrivate {
		d.Unannounce(chatIDHash)
		return nil
	}
	announcement := &dht.GroupAnnouncement{
		GroupID:   chatIDHash,
		Name:      name,
		Privacy:   uint8(privacy),
		Timestamp: timeNow(),
		TTL:       24 * time.Hour,
	}
	if d.storage != nil {
		d.storage.StoreAnnouncement(announcement)
	}
	return d.table.AnnounceGroup(announcement, d.transport)
}

// Unannounce withdraws a group's DHT registration, used when privacy
// flips from Public to Private (spec.md invariant 7: "atomically with the
// state update").
func (d *routingTableDiscovery) Unannounce(chatIDHash uint32) {
	if d.storage != nil {
		d.storage.RemoveAnnouncement(chatIDHash)
	}
}

// Lookup returns the announcement held in the local group-storage cache.
// On a cache miss it issues a fire-and-forget dht.RoutingTable.QueryGroup,
// so later lookups can converge, and reports not found.
func (d *routingTableDiscovery) Lookup(chatIDHash uint32) (*dht.GroupAnnouncement, bool) {
	if d.storage != nil {
		if ann, ok := d.storage.GetAnnouncement(chatIDHash); ok {
			return ann, true
		}
	}
	_, _ = d.table.QueryGroup(chatIDHash, d.transport)
	return nil, false
}

// timeNow is overridden in tests needing deterministic announcement
// timestamps; the group core's own Clock abstraction lives in driver.go.
var timeNow = time.Now
