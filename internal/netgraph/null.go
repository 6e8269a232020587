package netgraph

import (
	"fmt"
	"sync"
)

// Null is an in-memory Transport used by tests so the phys layer's
// event-driven logic can be exercised without a kernel.  It mirrors
// the nilNL/nilNLConn null-object pattern: every operation succeeds,
// and every session operation that sends or plumbs something
// (SendMessage, SendData, MakePeer, Connect, Disconnect, Shutdown,
// Close) is recorded so a test can assert on the sequence of calls a
// scenario produced.  Queries and receives are not recorded.
type Null struct {
	mu       sync.Mutex
	sessions map[string]*NullSession
	nextID   uint32
}

// NewNull returns a fresh Null transport with no sessions.
func NewNull() *Null {
	return &Null{sessions: make(map[string]*NullSession)}
}

// SetInterfaceUp implements Transport; it is a no-op that always
// succeeds.
func (n *Null) SetInterfaceUp(iface string) error { return nil }

// LoadModule implements Transport; it is a no-op that always succeeds.
func (n *Null) LoadModule(name string) error { return nil }

// NewSocketPair implements Transport.
func (n *Null) NewSocketPair(path string) (Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.sessions[path]; ok {
		return s, nil
	}
	s := &NullSession{
		owner:   n,
		path:    path,
		ctrlCh:  make(chan Message, 64),
		dataCh:  make(chan nullDatagram, 64),
		hookMap: map[string]string{},
	}
	n.sessions[path] = s
	return s, nil
}

// Session looks up a previously created session by path, for test code
// that wants to inject messages directly.
func (n *Null) Session(path string) *NullSession {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessions[path]
}

func (n *Null) allocNodeID() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	return n.nextID
}

// Call records one Session operation for assertions in tests.
type Call struct {
	Op     string
	Path   string
	Hook   string
	Cookie uint32
	Cmd    uint32
	Body   []byte
}

type nullDatagram struct {
	hook string
	data []byte
}

// NullSession is the Session implementation backing Null.
type NullSession struct {
	mu          sync.Mutex
	owner       *Null
	path        string
	Calls       []Call
	ctrlCh      chan Message
	dataCh      chan nullDatagram
	hookMap     map[string]string // hook name -> peer path, for Connect bookkeeping
	nodeTypes   map[string]bool
	listHooksFn func(path string) (NodeInfo, error)
	closed      bool
}

func (s *NullSession) record(c Call) {
	s.mu.Lock()
	s.Calls = append(s.Calls, c)
	s.mu.Unlock()
}

func (s *NullSession) ControlFD() int { return -1 }
func (s *NullSession) DataFD() int    { return -1 }

func (s *NullSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.record(Call{Op: "Close", Path: s.path})
	return nil
}

func (s *NullSession) SendMessage(path string, cookie uint32, cmd uint32, body []byte) error {
	s.record(Call{Op: "SendMessage", Path: path, Cookie: cookie, Cmd: cmd, Body: body})
	return nil
}

// InjectMessage pushes a control message as if the kernel had sent
// it, for RecvMessage to pick up.
func (s *NullSession) InjectMessage(m Message) {
	s.ctrlCh <- m
}

func (s *NullSession) RecvMessage() (Message, error) {
	m, ok := <-s.ctrlCh
	if !ok {
		return Message{}, fmt.Errorf("control channel closed")
	}
	return m, nil
}

func (s *NullSession) SendData(hook string, data []byte) error {
	s.record(Call{Op: "SendData", Hook: hook, Body: data})
	return nil
}

// InjectData pushes a datagram as if it had arrived on the data
// socket, for RecvData to pick up.
func (s *NullSession) InjectData(hook string, data []byte) {
	s.dataCh <- nullDatagram{hook: hook, data: data}
}

func (s *NullSession) RecvData() (hook string, data []byte, err error) {
	d, ok := <-s.dataCh
	if !ok {
		return "", nil, fmt.Errorf("data channel closed")
	}
	return d.hook, d.data, nil
}

func (s *NullSession) MakePeer(nodeType, ourHook, peerHook string) (uint32, error) {
	s.record(Call{Op: "MakePeer", Hook: ourHook, Path: nodeType})
	return s.owner.allocNodeID(), nil
}

func (s *NullSession) Connect(fromPath, fromHook, toPath, toHook string) error {
	s.record(Call{Op: "Connect", Path: fromPath, Hook: fromHook})
	s.mu.Lock()
	s.hookMap[fromHook] = toPath
	s.mu.Unlock()
	return nil
}

func (s *NullSession) Disconnect(hook string) error {
	s.record(Call{Op: "Disconnect", Hook: hook})
	s.mu.Lock()
	delete(s.hookMap, hook)
	s.mu.Unlock()
	return nil
}

func (s *NullSession) Shutdown(path string) error {
	s.record(Call{Op: "Shutdown", Path: path})
	return nil
}

// SetNodeTypes configures the result ListNodeTypes returns; by default
// both the Ethernet and PPPoE node types are reported present.
func (s *NullSession) SetNodeTypes(types map[string]bool) {
	s.mu.Lock()
	s.nodeTypes = types
	s.mu.Unlock()
}

func (s *NullSession) ListNodeTypes() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nodeTypes != nil {
		return s.nodeTypes, nil
	}
	return map[string]bool{NodeTypeEther: true, NodeTypePPPoE: true}, nil
}

// SetListHooksResult overrides every subsequent ListHooks response, for
// tests that exercise the orphan-hook adoption logic.
func (s *NullSession) SetListHooksResult(fn func(path string) (NodeInfo, error)) {
	s.mu.Lock()
	s.listHooksFn = fn
	s.mu.Unlock()
}

func (s *NullSession) ListHooks(path string) (NodeInfo, error) {
	s.mu.Lock()
	fn := s.listHooksFn
	s.mu.Unlock()
	if fn != nil {
		return fn(path)
	}
	return NodeInfo{NodeType: NodeTypeEther, Hooks: nil, PeerType: nil}, nil
}

func (s *NullSession) NodeID(path string) (uint32, error) {
	return s.owner.allocNodeID(), nil
}
