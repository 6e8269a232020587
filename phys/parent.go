package phys

import (
	"fmt"

	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// ParentInterface is a per-physical-Ethernet binding shared by every
// Link whose configuration resolves to the same graph path.  Its
// refcount always equals the number of Links whose parent pointer
// references it.
type ParentInterface struct {
	path    string
	nodeID  uint32
	session netgraph.Session
	refs    int
	listens []*ListenEntry
	logger  log.Logger
}

// Path returns the graph path this entry is bound to.
func (p *ParentInterface) Path() string { return p.path }

// Refs returns the current link reference count, for tests asserting
// invariant 2.
func (p *ParentInterface) Refs() int { return p.refs }

// Session exposes the underlying netgraph session so the Router can
// register it for readable events and use it to send messages on
// behalf of a Link.
func (p *ParentInterface) Session() netgraph.Session { return p.session }

// ParentTable is the fixed-size parent-interface registry.  At most
// one entry exists per graph path, and the table never grows past its
// configured capacity.
type ParentTable struct {
	transport netgraph.Transport
	entries   []*ParentInterface
	capacity  int
	logger    log.Logger

	etherTypeVerified bool
}

// NewParentTable returns an empty ParentTable bound to transport, with
// room for up to capacity distinct parent interfaces.  A capacity of
// zero selects defaultParentTableCapacity.
func NewParentTable(transport netgraph.Transport, capacity int, logger log.Logger) *ParentTable {
	if capacity <= 0 {
		capacity = defaultParentTableCapacity
	}
	return &ParentTable{
		transport: transport,
		capacity:  capacity,
		logger:    logger,
	}
}

// find returns the existing entry bound to path, if any.
func (t *ParentTable) find(path string) *ParentInterface {
	for _, e := range t.entries {
		if e.path == path {
			return e
		}
	}
	return nil
}

// verifyEtherNodeType checks, once per process, that the kernel has
// the Ethernet node type loaded, attempting to load it if not.
func (t *ParentTable) verifyEtherNodeType(session netgraph.Session) error {
	if t.etherTypeVerified {
		return nil
	}
	types, err := session.ListNodeTypes()
	if err != nil {
		return newError(ErrKindKernelPlumbing, "list-node-types", err)
	}
	if !types[netgraph.NodeTypeEther] {
		if err := t.transport.LoadModule("ng_ether"); err != nil {
			return &netgraph.ErrNodeTypeMissing{NodeType: netgraph.NodeTypeEther}
		}
		types, err = session.ListNodeTypes()
		if err != nil {
			return newError(ErrKindKernelPlumbing, "list-node-types", err)
		}
		if !types[netgraph.NodeTypeEther] {
			return &netgraph.ErrNodeTypeMissing{NodeType: netgraph.NodeTypeEther}
		}
	}
	t.etherTypeVerified = true
	return nil
}

// acquire implements Parent-Interface Registry.acquire: look up an
// existing entry for path, or create one, bringing iface up, creating
// the control/data socket pair, and either adopting or creating the
// PPPoE peer node on attachHook.
func (t *ParentTable) acquire(path, iface, attachHook string) (*ParentInterface, error) {
	if e := t.find(path); e != nil {
		e.refs++
		return e, nil
	}

	if len(t.entries) >= t.capacity {
		return nil, newError(ErrKindResourceExhaustion, "acquire",
			fmt.Errorf("parent interface table is full (capacity %d)", t.capacity))
	}

	if err := t.transport.SetInterfaceUp(iface); err != nil {
		return nil, newError(ErrKindKernelPlumbing, "set-interface-up", err)
	}

	session, err := t.transport.NewSocketPair(path)
	if err != nil {
		return nil, newError(ErrKindKernelPlumbing, "new-socket-pair", err)
	}

	if err := t.verifyEtherNodeType(session); err != nil {
		_ = session.Close()
		return nil, err
	}

	info, err := session.ListHooks(path)
	if err != nil {
		_ = session.Close()
		return nil, newError(ErrKindKernelPlumbing, "list-hooks", err)
	}

	var nodeID uint32
	peerType, attached := info.PeerType[attachHook]
	switch {
	case attached && peerType == netgraph.NodeTypePPPoE:
		nodeID, err = session.NodeID(path + "." + attachHook)
		if err != nil {
			_ = session.Close()
			return nil, newError(ErrKindKernelPlumbing, "get-node-id", err)
		}
	case attached:
		_ = session.Close()
		return nil, newError(ErrKindProtocol, "acquire",
			fmt.Errorf("hook %q on %q is attached to a %q node, not %q", attachHook, path, peerType, netgraph.NodeTypePPPoE))
	default:
		nodeID, err = session.MakePeer(netgraph.NodeTypePPPoE, attachHook, attachHook)
		if err != nil {
			_ = session.Close()
			return nil, newError(ErrKindKernelPlumbing, "make-peer", err)
		}
	}

	entry := &ParentInterface{
		path:    path,
		nodeID:  nodeID,
		session: session,
		refs:    1,
		logger:  log.With(t.logger, "parent", path),
	}
	t.entries = append(t.entries, entry)
	level.Info(entry.logger).Log("msg", "parent interface acquired", "iface", iface, "node_id", nodeID)
	return entry, nil
}

// release implements Parent-Interface Registry.release: decrement the
// refcount, and on reaching zero, close both sockets and drop the
// entry from the table.
func (t *ParentTable) release(p *ParentInterface) error {
	if p == nil {
		return nil
	}
	p.refs--
	if p.refs > 0 {
		return nil
	}
	for i, e := range t.entries {
		if e == p {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	level.Info(p.logger).Log("msg", "parent interface released")
	return p.session.Close()
}

// All returns every currently live parent entry, for the Router to
// register for readable events.
func (t *ParentTable) All() []*ParentInterface {
	out := make([]*ParentInterface, len(t.entries))
	copy(out, t.entries)
	return out
}
