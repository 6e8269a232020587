// Package netgraph wraps the kernel control-plane operations the phys
// layer needs: creating a control/data socket pair against a netgraph
// path, sending and receiving typed control messages, and sending and
// receiving raw data frames tagged with a hook name.
//
// There is no Go binding for FreeBSD's netgraph(4) socket family in the
// wider ecosystem, so Transport's wire framing mirrors the
// request/response shape of a generic-netlink control channel (a typed
// command, an attribute/body payload, a synchronous round trip) while
// the underlying socket plumbing is the raw, non-blocking fd handling
// in this package's raw.go.
package netgraph

import "fmt"

// Header is the fixed portion of a netgraph control message, exchanged
// over a control socket alongside a path-addressed body.
type Header struct {
	Cookie  uint32
	Cmd     uint32
	Version uint8
}

// Message is a received typed control message: the header, the
// sender's node path (often a hook name for PPPoE messages), and the
// command-specific body.
type Message struct {
	Header Header
	Path   string
	Body   []byte
}

// NodeInfo describes a netgraph node's type and the hooks currently
// connected to it.  PeerType maps a hook name to the node type of
// whatever is attached to it, when known; a hook absent from PeerType
// is unattached.
type NodeInfo struct {
	NodeType string
	Hooks    []string
	PeerType map[string]string
}

// Transport is the external contract the phys layer depends on for all
// kernel-graph interaction.  Production code is served by
// NewRawTransport (a real netgraph control/data socket pair, FreeBSD
// only); tests are served by Null (an
// in-memory fake) so the suite runs without a kernel.
type Transport interface {
	// NewSocketPair creates one control and one data socket bound for
	// interaction with the node at path, returning an opaque Session.
	NewSocketPair(path string) (Session, error)

	// SetInterfaceUp brings iface administratively up.
	SetInterfaceUp(iface string) error

	// LoadModule loads a kernel module by name, used as a fallback
	// when a required netgraph node type is missing.
	LoadModule(name string) error
}

// Session is the pair of sockets owned by one ParentInterface entry.
type Session interface {
	// SendMessage sends a typed control message for path (commonly a
	// hook name).  It returns once the message is handed off and does
	// not wait for a reply; callers that need one read it with
	// RecvMessage.
	SendMessage(path string, cookie uint32, cmd uint32, body []byte) error

	// RecvMessage blocks until one control message is available and
	// returns it.
	RecvMessage() (Message, error)

	// SendData writes bytes to the node on the named hook.
	SendData(hook string, data []byte) error

	// RecvData blocks until one datagram is available on the data
	// socket and returns it along with the hook it arrived on.
	RecvData() (hook string, data []byte, err error)

	// MakePeer creates a new node of nodeType as a peer hung off
	// ourHook, connected to the peer's peerHook.  It returns the new
	// peer node's id.
	MakePeer(nodeType, ourHook, peerHook string) (nodeID uint32, err error)

	// Connect joins fromHook on the node at fromPath to toHook on the
	// node at toPath.
	Connect(fromPath, fromHook, toPath, toHook string) error

	// Disconnect tears down the hook named hook on the local node.
	Disconnect(hook string) error

	// Shutdown destroys the node reached via path.
	Shutdown(path string) error

	// ListNodeTypes returns the set of node types the running kernel
	// has loaded.
	ListNodeTypes() (map[string]bool, error)

	// ListHooks returns the node type and hook list for the node at
	// path.
	ListHooks(path string) (NodeInfo, error)

	// NodeID returns the kernel node id of the node at path.
	NodeID(path string) (uint32, error)

	// ControlFD and DataFD return the raw file descriptors backing
	// this session, so the caller's event dispatcher can register
	// them for readability.
	ControlFD() int
	DataFD() int

	// Close releases both sockets.
	Close() error
}

// ErrNodeTypeMissing is returned when a node type required by the
// phys layer (the Ethernet node type, by default) cannot be found or
// loaded.  The caller treats this as a process-level invariant
// violation per the daemon's fatal-error policy.
type ErrNodeTypeMissing struct {
	NodeType string
}

func (e *ErrNodeTypeMissing) Error() string {
	return fmt.Sprintf("netgraph node type %q is not available and could not be loaded", e.NodeType)
}
