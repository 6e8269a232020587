package phys

import (
	"fmt"
	"os"
	"time"

	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
	"github.com/AxeyGabriel/mpd-ng/pppoe"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Link states, per the Link State Machine.
const (
	StateDown       = "DOWN"
	StateConnecting = "CONNECTING"
	StateReady      = "READY"
	StateUp         = "UP"
)

// DefaultConnectTimeout is the per-link connect-timeout timer
// duration.  Expiry is equivalent to a PPPOE_FAIL for that link.
const DefaultConnectTimeout = 9 * time.Second

var pid = os.Getpid()

// Link is a per-session phys-layer entity.  Its lifetime is driven by
// its own state machine (DOWN -> CONNECTING -> READY -> UP) in
// response to calls from its owning daemon and control messages
// dispatched to it by a Router.
type Link struct {
	id     uint32
	name   string
	cfg    *Config
	upper  UpperLayer
	table  *ParentTable
	logger log.Logger

	fsm fsm

	parent      *ParentInterface
	listenEntry *ListenEntry

	incoming        bool
	opened          bool
	template        bool
	peerMAC         [6]byte
	realSession     string
	agentCircuitID  string
	agentRemoteID   string
	maxPayloadReply bool

	connectTimeout time.Duration
	timer          *time.Timer
	timeoutChan    chan<- *Link
	registrar      SessionRegistrar

	stats Stats
}

// SessionRegistrar is notified the first time a Link brings a
// ParentInterface into use, so the owning Router can start reading its
// control and data sockets.  The Router implements this.
type SessionRegistrar interface {
	RegisterSession(p *ParentInterface)
}

// SetSessionRegistrar wires the collaborator that starts reading a
// newly acquired parent's sockets.
func (l *Link) SetSessionRegistrar(r SessionRegistrar) {
	l.registrar = r
}

// NewLink constructs a Link in state DOWN with the given id, name, and
// configuration.  A template link (one whose Config.Incoming is set
// and which is never itself opened outgoing) is cloned by the upper
// layer via Instantiate when an incoming request matches it.
func NewLink(id uint32, name string, cfg *Config, table *ParentTable, upper UpperLayer, logger log.Logger) *Link {
	l := &Link{
		id:             id,
		name:           name,
		cfg:            cfg,
		table:          table,
		upper:          upper,
		connectTimeout: DefaultConnectTimeout,
		logger:         log.With(logger, "link", name, "id", id),
	}
	l.fsm = fsm{
		current: StateDown,
		table: []eventDesc{
			{from: StateDown, to: StateConnecting, events: []string{"open-outgoing", "incoming-match"}},
			{from: StateConnecting, to: StateUp, events: []string{"success-opened"}},
			{from: StateConnecting, to: StateReady, events: []string{"success-not-opened"}},
			{from: StateReady, to: StateUp, events: []string{"open-ready"}},
			{from: StateConnecting, to: StateDown, events: []string{"fail", "close-peer", "timeout", "close-manual"}},
			{from: StateReady, to: StateDown, events: []string{"fail", "close-peer", "close-manual"}},
			{from: StateUp, to: StateDown, events: []string{"fail", "close-peer", "close-manual"}},
		},
	}
	return l
}

// ID returns the link's numeric identifier.
func (l *Link) ID() uint32 { return l.id }

// Name returns the link's configured name.
func (l *Link) Name() string { return l.name }

// State returns the current FSM state.
func (l *Link) State() string { return l.fsm.current }

// Incoming reports whether this link instance is (or will be) serving
// an incoming call, as opposed to dialing out.
func (l *Link) Incoming() bool { return l.incoming }

// Template reports whether this Link is a template, cloned via
// Instantiate on each accepted incoming call rather than used
// directly.
func (l *Link) Template() bool { return l.template }

// MarkTemplate flags this Link as a template.
func (l *Link) MarkTemplate() { l.template = true }

// Busy reports whether the link is already in use for a session and
// so is not eligible to answer another incoming discovery request.
func (l *Link) Busy() bool { return l.fsm.current != StateDown }

// PeerMAC returns the peer's Ethernet address.
func (l *Link) PeerMAC() [6]byte { return l.peerMAC }

// RealSession returns the resolved "real session" name, falling back
// to the matched listen service when the peer sent no Service-Name.
func (l *Link) RealSession() string { return l.realSession }

// AgentCircuitID and AgentRemoteID return the DSL Forum vendor tag
// values received with the incoming request, if any.
func (l *Link) AgentCircuitID() string { return l.agentCircuitID }
func (l *Link) AgentRemoteID() string  { return l.agentRemoteID }

// Stats returns a snapshot of the link's counters.
func (l *Link) Stats() Stats { return l.stats }

// ParentPath returns the netgraph graph path this link's parent
// interface resolves to. It is available even before the parent has
// been acquired, since it is derived solely from configuration.
func (l *Link) ParentPath() string { return l.cfg.DerivePath() }

// Clone creates a fresh, independent Link sharing this link's
// configuration, parent table and upper-layer collaborator, suitable
// for answering one incoming call matched against a template. The
// clone starts in state DOWN and is not itself marked as a template.
func (l *Link) Clone(id uint32) *Link {
	return NewLink(id, fmt.Sprintf("%s-%d", l.name, id), l.cfg, l.table, l.upper, l.logger)
}

// hookName is the per-session hook name used on the PPPoE node for
// this link: "mpd<pid>-<link_id>".
func (l *Link) hookName() string {
	return fmt.Sprintf("mpd%d-%d", pid, l.id)
}

// hookLinkID parses the trailing integer out of a per-session hook
// name of the form "mpd<pid>-<id>", validating the prefix.  It is used
// by the Router to decode which link a control message is for.
func hookLinkID(hook string) (id uint32, ok bool) {
	prefix := fmt.Sprintf("mpd%d-", pid)
	if len(hook) <= len(prefix) || hook[:len(prefix)] != prefix {
		return 0, false
	}
	var n uint32
	for _, c := range hook[len(prefix):] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint32(c-'0')
	}
	return n, true
}

// SetTimeoutChan wires the channel a fired connect timer posts itself
// onto.  The Router owns this channel and is the only goroutine that
// ever acts on what it receives, so the timer goroutine itself never
// touches Link state.
func (l *Link) SetTimeoutChan(ch chan<- *Link) {
	l.timeoutChan = ch
}

func (l *Link) armTimer() {
	l.stopTimer()
	l.timer = time.AfterFunc(l.connectTimeout, func() {
		if l.timeoutChan != nil {
			l.timeoutChan <- l
		}
	})
}

func (l *Link) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// TimerArmed reports whether the connect timer is currently running,
// for tests asserting invariant 1.
func (l *Link) TimerArmed() bool { return l.timer != nil }

// Open drives the link's "open" operation.  From DOWN it dials out
// (creating the per-session hook and sending PPPOE_CONNECT); from
// READY it completes an in-progress incoming handshake by plumbing the
// tee node's straight-through path. Any other state is a policy error.
func (l *Link) Open() error {
	switch l.fsm.current {
	case StateDown:
		return l.openOutgoing()
	case StateReady:
		return l.openReady()
	default:
		return newError(ErrKindPolicy, "open", fmt.Errorf("cannot open link in state %s", l.fsm.current))
	}
}

// Listen makes an incoming-enabled link eligible to answer incoming
// discovery requests for its configured service: it acquires the parent
// interface (bringing the Ethernet node's orphan hook up if this is
// the first link bound to it) and registers a "listen-<service>"
// kernel hook.  A link whose Config.Incoming is false, or one already
// listening, is left unchanged.
func (l *Link) Listen() error {
	if !l.cfg.Incoming || l.listenEntry != nil {
		return nil
	}
	parent, err := l.table.acquire(l.cfg.DerivePath(), l.cfg.Iface, l.cfg.AttachHook)
	if err != nil {
		return err
	}
	if l.registrar != nil {
		l.registrar.RegisterSession(parent)
	}
	entry, err := parent.listen(l.cfg.Service)
	if err != nil {
		_ = l.table.release(parent)
		return err
	}
	l.parent = parent
	l.listenEntry = entry
	return nil
}

// Unlisten reverses Listen: it drops the listen registration and
// releases the parent reference it held, leaving the link usable
// again with Listen.
func (l *Link) Unlisten() error {
	if l.listenEntry == nil {
		return nil
	}
	entry := l.listenEntry
	parent := l.parent
	l.listenEntry = nil
	l.parent = nil
	if err := parent.unlisten(entry); err != nil {
		return err
	}
	return l.table.release(parent)
}

func (l *Link) openOutgoing() error {
	path := l.cfg.DerivePath()
	parent, err := l.table.acquire(path, l.cfg.Iface, l.cfg.AttachHook)
	if err != nil {
		return err
	}
	if l.registrar != nil {
		l.registrar.RegisterSession(parent)
	}

	upperPath, upperHook, err := l.upper.RequestUpperHook(l)
	if err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "open: request-upper-hook", err)
	}

	hook := l.hookName()
	if err := parent.session.Connect(path, hook, upperPath, upperHook); err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "open: connect", err)
	}

	if l.cfg.MaxPayload != 0 {
		if err := parent.session.SendMessage(hook, netgraph.PPPoECookie, netgraph.CmdPPPoESetMaxP,
			pppoe.EncodePPPMaxPayload(l.cfg.MaxPayload)); err != nil {
			_ = parent.session.Disconnect(hook)
			_ = l.table.release(parent)
			return newError(ErrKindKernelPlumbing, "open: setmaxp", err)
		}
	}

	if err := parent.session.SendMessage(hook, netgraph.PPPoECookie, netgraph.CmdPPPoEConnect, []byte(l.cfg.Service)); err != nil {
		_ = parent.session.Disconnect(hook)
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "open: pppoe-connect", err)
	}

	l.parent = parent
	l.incoming = false
	l.opened = true
	l.stats.ConnectAttempts++
	l.armTimer()

	return l.fsm.handleEvent("open-outgoing")
}

func (l *Link) openReady() error {
	upperPath, upperHook, err := l.upper.RequestUpperHook(l)
	if err != nil {
		return newError(ErrKindKernelPlumbing, "open: request-upper-hook", err)
	}

	teeHook := l.hookName()
	if err := l.parent.session.Connect(l.parent.path, teeHook+"-"+netgraph.HookTeeRight, upperPath, upperHook); err != nil {
		return newError(ErrKindKernelPlumbing, "open: connect tee right", err)
	}
	if err := l.parent.session.Shutdown(l.parent.path + "." + teeHook + "-tee"); err != nil {
		level.Warn(l.logger).Log("msg", "failed to shut down tee node", "err", err)
	}

	l.opened = true
	if err := l.fsm.handleEvent("open-ready"); err != nil {
		return err
	}
	level.Info(l.logger).Log("msg", "link up", "peer_mac", FormatMAC(l.peerMAC, l.cfg.MACFormat))
	l.upper.NotifyUp(l)
	return nil
}

// AcceptIncoming implements the "server plumb-in" sequence of §4.6: it
// creates a tee peer on the per-session hook, replays the original
// discovery request through it, sends OFFER and SERVICE, and arms the
// connect timer.  requestBytes is the raw datagram the Router received
// on the matched listen hook.
func (l *Link) AcceptIncoming(peerMAC [6]byte, realSession, circuitID, remoteID string, requestBytes []byte, hostName string) error {
	if l.fsm.current != StateDown {
		return newError(ErrKindPolicy, "accept-incoming", fmt.Errorf("link not in state DOWN"))
	}

	parent, err := l.table.acquire(l.cfg.DerivePath(), l.cfg.Iface, l.cfg.AttachHook)
	if err != nil {
		return err
	}
	if l.registrar != nil {
		l.registrar.RegisterSession(parent)
	}

	hook := l.hookName()
	if _, err := parent.session.MakePeer(netgraph.NodeTypeTee, hook+"-tee", netgraph.HookTeeLeft); err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "accept-incoming: make-peer tee", err)
	}
	if err := parent.session.Connect(parent.path, hook, parent.path, hook+"-tee-"+netgraph.HookTeeLeft2Rgt); err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "accept-incoming: connect temp hook", err)
	}

	offerName := l.cfg.ACName
	if offerName == "" {
		offerName = hostName
	}
	if offerName == "" {
		offerName = "NONAME"
	}
	if err := parent.session.SendMessage(hook, netgraph.PPPoECookie, netgraph.CmdPPPoEOffer, []byte(offerName)); err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "accept-incoming: pppoe-offer", err)
	}
	if err := parent.session.SendMessage(hook, netgraph.PPPoECookie, netgraph.CmdPPPoEService, []byte(realSession)); err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "accept-incoming: pppoe-service", err)
	}

	if err := parent.session.SendData(hook, requestBytes); err != nil {
		_ = l.table.release(parent)
		return newError(ErrKindKernelPlumbing, "accept-incoming: replay request", err)
	}

	if err := parent.session.Disconnect(hook + "-tee-" + netgraph.HookTeeLeft2Rgt); err != nil {
		level.Warn(l.logger).Log("msg", "failed to detach temporary hook", "err", err)
	}

	l.parent = parent
	l.incoming = true
	l.peerMAC = peerMAC
	l.realSession = realSession
	l.agentCircuitID = circuitID
	l.agentRemoteID = remoteID
	l.stats.ConnectAttempts++
	l.armTimer()

	if err := l.fsm.handleEvent("incoming-match"); err != nil {
		return newError(ErrKindPolicy, "accept-incoming", err)
	}
	l.upper.NotifyIncoming(l)
	return nil
}

// handleSuccess processes a PPPOE_SUCCESS control message for this
// link.
func (l *Link) handleSuccess() error {
	l.stopTimer()
	event := "success-not-opened"
	if l.opened {
		event = "success-opened"
	}
	if err := l.fsm.handleEvent(event); err != nil {
		return err
	}
	if l.fsm.current == StateUp {
		level.Info(l.logger).Log("msg", "link up")
		l.upper.NotifyUp(l)
	}
	return nil
}

// handleSetMaxPReply processes a SETMAXP reply. A mismatch is logged,
// not fatal; an unsolicited reply (configured value zero) is logged.
func (l *Link) handleSetMaxPReply(replied uint16) {
	if l.cfg.MaxPayload == 0 {
		level.Info(l.logger).Log("msg", "unsolicited SETMAXP reply", "value", replied)
		return
	}
	if replied == l.cfg.MaxPayload {
		l.maxPayloadReply = true
		return
	}
	level.Warn(l.logger).Log("msg", "SETMAXP reply mismatch", "configured", l.cfg.MaxPayload, "replied", replied)
}

// HandleTimeout is invoked by the Router, in its own goroutine, after
// receiving this Link on the timeout channel; it is equivalent to a
// PPPOE_FAIL for connect-timer expiry purposes.
func (l *Link) HandleTimeout() error {
	if l.fsm.current != StateConnecting {
		level.Debug(l.logger).Log("msg", "ignoring stale connect timeout", "state", l.fsm.current)
		return nil
	}
	l.timer = nil
	return l.teardown("connection timeout", "timeout")
}

// handleFail processes a PPPOE_FAIL control message.
func (l *Link) handleFail() error {
	return l.teardown("connection failed", "fail")
}

// handleClosePeer processes a PPPOE_CLOSE control message.
func (l *Link) handleClosePeer() error {
	return l.teardown("dropped", "close-peer")
}

// Close implements the manual close operation: if the link is already
// DOWN this is a no-op.
func (l *Link) Close() error {
	if l.fsm.current == StateDown {
		return nil
	}
	return l.teardown("manual", "close-manual")
}

// teardown disconnects the per-session hook, stops the connect timer,
// resets session-scoped fields, transitions to DOWN, and notifies the
// upper layer with cause.
func (l *Link) teardown(cause, event string) error {
	l.stopTimer()
	if l.parent != nil {
		if err := l.parent.session.Disconnect(l.hookName()); err != nil {
			level.Warn(l.logger).Log("msg", "failed to disconnect per-session hook", "err", err)
		}
		if l.listenEntry != nil {
			if err := l.parent.unlisten(l.listenEntry); err != nil {
				level.Warn(l.logger).Log("msg", "failed to unlisten", "err", err)
			}
			l.listenEntry = nil
		}
		if err := l.table.release(l.parent); err != nil {
			level.Warn(l.logger).Log("msg", "failed to release parent", "err", err)
		}
		l.parent = nil
	}

	l.peerMAC = [6]byte{}
	l.realSession = ""
	l.agentCircuitID = ""
	l.agentRemoteID = ""
	l.maxPayloadReply = false
	l.opened = false
	if cause == "connection failed" {
		l.stats.Failures++
	}

	if err := l.fsm.handleEvent(event); err != nil {
		return err
	}
	level.Info(l.logger).Log("msg", "link down", "cause", cause)
	l.upper.NotifyDown(l, cause)
	return nil
}

// Shutdown tears the link down if it is not already DOWN and drops any
// listen registration it still holds; intended for daemon shutdown or
// cleanup of a non-static instance whose incoming attempt failed.  It
// does not mark the link unusable: a later Open or Listen behaves as
// on any other DOWN link.
func (l *Link) Shutdown() {
	if l.fsm.current != StateDown {
		_ = l.teardown("manual", "close-manual")
	}
	_ = l.Unlisten()
}

// GetMTU and GetMRU report the link's effective or configured MTU/MRU.
// If a nonzero max-payload was configured and a matching SETMAXP reply
// was received, that value is reported; otherwise the PPPoE default
// (1492) is reported for the effective query, or the configured value
// (if any) otherwise.
func (l *Link) GetMTU(effective bool) uint16 {
	return l.mtuMRU(effective)
}

func (l *Link) GetMRU(effective bool) uint16 {
	return l.mtuMRU(effective)
}

func (l *Link) mtuMRU(effective bool) uint16 {
	if l.cfg.MaxPayload != 0 && l.maxPayloadReply {
		return l.cfg.MaxPayload
	}
	if effective {
		return pppoeMRU
	}
	return l.cfg.MaxPayload
}
