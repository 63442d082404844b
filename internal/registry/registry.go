// Package registry holds the broker's process-wide connection table: a
// mapping from transport peer address to ConnectionRecord, guarded by a
// single mutual-exclusion domain, and the fan-out/point-to-point routing
// primitives built on top of it.
//
// Grounded on server/internal/core/channel_state.go's ChannelState,
// generalized from per-user presence state to an identification/group/
// role model and from a 50ms-timeout send to a genuinely non-blocking,
// unbounded enqueue.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/SilentByte/aviator5g/internal/protocol"
)

// ErrAlreadyIdentified is returned by Identify when the connection has
// already completed identification once.
var ErrAlreadyIdentified = errors.New("registry: connection already identified")

// ConnectionRecord is a per-accepted-connection record. Its identification
// fields are set at most once, atomically, by Registry.Identify under the
// owning Registry's mutex, and the Registry's own lookups read them under
// that mutex too. The exported accessor methods read them without locking.
type ConnectionRecord struct {
	Addr string

	identified bool
	id         protocol.Id
	groupId    protocol.Id
	clientType protocol.ClientType

	outbound *outboundQueue
}

// Identified reports whether identification has completed.
func (c *ConnectionRecord) Identified() bool { return c.identified }

// Id returns the connection's id. Only meaningful once Identified is true.
func (c *ConnectionRecord) Id() protocol.Id { return c.id }

// GroupId returns the connection's group id. Only meaningful once
// Identified is true.
func (c *ConnectionRecord) GroupId() protocol.Id { return c.groupId }

// ClientType returns the connection's role. Only meaningful once
// Identified is true.
func (c *ConnectionRecord) ClientType() protocol.ClientType { return c.clientType }

// Enqueue appends msg to this connection's outbound queue. Never blocks;
// silently discards the frame if the connection is already tearing down.
func (c *ConnectionRecord) Enqueue(msg protocol.Message) { c.outbound.enqueue(msg) }

// Dequeue blocks until a message is queued or the connection is released,
// in which case ok is false and the caller's writer loop should exit.
func (c *ConnectionRecord) Dequeue() (msg protocol.Message, ok bool) { return c.outbound.dequeue() }

// Registry is the broker's process-wide connection table.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ConnectionRecord
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*ConnectionRecord)}
}

// Accept registers a new unidentified ConnectionRecord keyed by addr,
// the transport peer address. addr must be unique; a second Accept with
// the same addr replaces the first.
func (r *Registry) Accept(addr string) *ConnectionRecord {
	rec := &ConnectionRecord{Addr: addr, outbound: newOutboundQueue()}
	r.mu.Lock()
	r.conns[addr] = rec
	r.mu.Unlock()
	return rec
}

// Release removes addr's record, for any exit cause, and closes its
// outbound queue so the connection's writer loop terminates. Idempotent.
func (r *Registry) Release(addr string) {
	r.mu.Lock()
	rec, ok := r.conns[addr]
	if ok {
		delete(r.conns, addr)
	}
	r.mu.Unlock()
	if ok {
		rec.outbound.close()
	}
}

// Identify sets a connection's id/group/role exactly once. A second call
// on the same connection returns ErrAlreadyIdentified without mutating
// anything; there is no backwards transition out of identified.
func (r *Registry) Identify(addr string, id, groupId protocol.Id, clientType protocol.ClientType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[addr]
	if !ok {
		return fmt.Errorf("registry: unknown connection %s", addr)
	}
	if rec.identified {
		return ErrAlreadyIdentified
	}

	rec.id = id
	rec.groupId = groupId
	rec.clientType = clientType
	rec.identified = true
	return nil
}

// ByAddr looks up the record for addr, if any.
func (r *Registry) ByAddr(addr string) (*ConnectionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.conns[addr]
	return rec, ok
}

// ByID performs a linear reverse lookup for the unique identified record
// whose id equals target. Id uniqueness across identified connections is
// assumed, not enforced — see the Open Questions in DESIGN.md.
func (r *Registry) ByID(target uuid.UUID) (*ConnectionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.conns {
		if rec.identified && rec.id == target {
			return rec, true
		}
	}
	return nil, false
}

// Len returns the current number of registered connections, identified or
// not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ForwardAll is the group fan-out predicate: a frame from senderAddr is
// enqueued onto every other identified connection R where
// R.GroupId == sender.GroupId and R.ClientType != sender.ClientType. If
// senderAddr is unknown or unidentified, ForwardAll is a no-op.
func (r *Registry) ForwardAll(senderAddr string, msg protocol.Message) {
	r.mu.Lock()
	sender, ok := r.conns[senderAddr]
	if !ok || !sender.identified {
		r.mu.Unlock()
		return
	}

	var targets []*ConnectionRecord
	for addr, rec := range r.conns {
		if addr == senderAddr || !rec.identified {
			continue
		}
		if rec.groupId == sender.groupId && rec.clientType != sender.clientType {
			targets = append(targets, rec)
		}
	}
	r.mu.Unlock()

	for _, t := range targets {
		t.Enqueue(msg)
	}
}

// ForwardSingle enqueues msg onto the unique identified connection whose
// id equals targetId, in any group. If no such connection exists, the
// action is a silent drop.
func (r *Registry) ForwardSingle(targetId protocol.Id, msg protocol.Message) {
	r.mu.Lock()
	var target *ConnectionRecord
	for _, rec := range r.conns {
		if rec.identified && rec.id == targetId {
			target = rec
			break
		}
	}
	r.mu.Unlock()

	if target != nil {
		target.Enqueue(msg)
	}
}
