package phys

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
	"github.com/AxeyGabriel/mpd-ng/pppoe"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

type controlEvent struct {
	parent *ParentInterface
	msg    netgraph.Message
}

type dataEvent struct {
	parent *ParentInterface
	hook   string
	data   []byte
}

// Router is the Discovery Event Router: the single-threaded event
// dispatcher that owns every Link and ParentInterface in the daemon.
// It reads each ParentInterface's control and data sockets on its own
// goroutines, but every byte of state (links, parent table, listen
// entries) is only ever touched from the goroutine running Run.
type Router struct {
	table  *ParentTable
	upper  UpperLayer
	logger log.Logger

	mu    sync.Mutex
	links map[uint32]*Link
	nextID uint32

	registered map[string]bool
	regMu      sync.Mutex

	controlChan chan controlEvent
	dataChan    chan dataEvent
	timeoutChan chan *Link
	commands    chan func()

	draining atomic.Bool

	wg sync.WaitGroup
}

// NewRouter constructs a Router bound to table, delegating upper-layer
// notifications and hook resolution to upper.
func NewRouter(table *ParentTable, upper UpperLayer, logger log.Logger) *Router {
	return &Router{
		table:       table,
		upper:       upper,
		logger:      logger,
		links:       make(map[uint32]*Link),
		registered:  make(map[string]bool),
		controlChan: make(chan controlEvent, 64),
		dataChan:    make(chan dataEvent, 64),
		timeoutChan: make(chan *Link, 16),
		commands:    make(chan func()),
	}
}

// AddLink registers l with the Router, wiring it to post connect-timer
// expiry and parent-session registration through the Router's single
// dispatch goroutine.  AddLink itself is safe to call before Run
// starts, or from within a command submitted via Do.
func (r *Router) AddLink(l *Link) {
	l.SetSessionRegistrar(r)
	l.SetTimeoutChan(r.timeoutChan)
	r.mu.Lock()
	r.links[l.id] = l
	r.mu.Unlock()
}

// RemoveLink drops l from the Router's link table, e.g. once a
// non-template incoming instance has torn down for good.
func (r *Router) RemoveLink(l *Link) {
	r.mu.Lock()
	delete(r.links, l.id)
	r.mu.Unlock()
}

// NextLinkID returns a fresh link id unique within this Router,
// suitable for use when instantiating a clone of a template link.
func (r *Router) NextLinkID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

func (r *Router) link(id uint32) *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[id]
}

func (r *Router) linksSnapshot() []*Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Link, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	return out
}

// Do submits fn to run on the Router's own dispatch goroutine and
// blocks until it has completed, giving callers (CLI command handling,
// config reload) a way to mutate Link/Router state without racing the
// event loop.
func (r *Router) Do(fn func()) {
	done := make(chan struct{})
	r.commands <- func() {
		fn()
		close(done)
	}
	<-done
}

// RegisterSession implements SessionRegistrar: the first time a given
// parent path is seen, two goroutines are started to forward its
// control and data sockets onto the Router's shared channels. Repeat
// calls for an already-registered path are a no-op.
func (r *Router) RegisterSession(p *ParentInterface) {
	r.regMu.Lock()
	if r.registered[p.Path()] {
		r.regMu.Unlock()
		return
	}
	r.registered[p.Path()] = true
	r.regMu.Unlock()

	session := p.Session()

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for {
			msg, err := session.RecvMessage()
			if err != nil {
				level.Debug(r.logger).Log("msg", "control socket closed", "parent", p.Path(), "err", err)
				return
			}
			r.controlChan <- controlEvent{parent: p, msg: msg}
		}
	}()
	go func() {
		defer r.wg.Done()
		for {
			hook, data, err := session.RecvData()
			if err != nil {
				level.Debug(r.logger).Log("msg", "data socket closed", "parent", p.Path(), "err", err)
				return
			}
			r.dataChan <- dataEvent{parent: p, hook: hook, data: data}
		}
	}()
}

// Run is the central event-dispatch loop. It returns when ctx is
// cancelled, after every link has been shut down.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.draining.Store(true)
			for _, l := range r.linksSnapshot() {
				l.Shutdown()
			}
			r.wg.Wait()
			return
		case fn := <-r.commands:
			fn()
		case ev := <-r.controlChan:
			r.handleControl(ev)
		case ev := <-r.dataChan:
			r.handleData(ev)
		case l := <-r.timeoutChan:
			if err := l.HandleTimeout(); err != nil {
				level.Warn(r.logger).Log("msg", "timeout handling failed", "link", l.Name(), "err", err)
			}
		}
	}
}

// handleControl implements the control-message handler of the
// Discovery Event Router: reject anything not carrying the PPPoE
// cookie, resolve the addressed link by its per-session hook name, and
// advance that link's state machine.
func (r *Router) handleControl(ev controlEvent) {
	if ev.msg.Header.Cookie != netgraph.PPPoECookie {
		level.Debug(r.logger).Log("msg", "dropping control message with unrecognised cookie", "cookie", ev.msg.Header.Cookie)
		return
	}

	switch ev.msg.Header.Cmd {
	case netgraph.CmdPPPoEACName, netgraph.CmdPPPoEHURL, netgraph.CmdPPPoEMOTM:
		level.Info(r.logger).Log("msg", "received informational control message", "cmd", ev.msg.Header.Cmd, "payload", string(ev.msg.Body))
		return
	case netgraph.CmdPPPoESessionID:
		level.Debug(r.logger).Log("msg", "session id notification", "payload", string(ev.msg.Body))
		return
	}

	if _, ok := isListenHook(ev.msg.Path); ok {
		return
	}

	id, ok := hookLinkID(ev.msg.Path)
	if !ok {
		level.Warn(r.logger).Log("msg", "control message on unrecognised hook", "hook", ev.msg.Path)
		return
	}

	l := r.link(id)
	if l == nil || l.parent != ev.parent {
		level.Warn(r.logger).Log("msg", "control message for unknown or mismatched link", "link_id", id)
		return
	}

	var err error
	switch ev.msg.Header.Cmd {
	case netgraph.CmdPPPoESuccess:
		err = l.handleSuccess()
	case netgraph.CmdPPPoEFail:
		err = l.handleFail()
	case netgraph.CmdPPPoEClose:
		err = l.handleClosePeer()
	case netgraph.CmdPPPoESetMaxP:
		if v, ok := pppoe.DecodePPPMaxPayload(ev.msg.Body); ok {
			l.handleSetMaxPReply(v)
		}
	default:
		level.Debug(r.logger).Log("msg", "unhandled control command", "cmd", ev.msg.Header.Cmd, "link_id", id)
	}
	if err != nil {
		level.Warn(r.logger).Log("msg", "link state transition failed", "link_id", id, "err", err)
	}
}

// handleData implements the data handler: datagrams only ever arrive
// on a "listen-<service>" hook, carrying a discovery-phase PADI or PADR
// addressed to that service.
func (r *Router) handleData(ev dataEvent) {
	if r.draining.Load() {
		level.Debug(r.logger).Log("msg", "dropping discovery datagram while shutting down", "hook", ev.hook)
		return
	}

	service, ok := isListenHook(ev.hook)
	if !ok {
		level.Warn(r.logger).Log("msg", "data on unexpected hook", "hook", ev.hook)
		return
	}

	packets, err := pppoe.ParsePacketBuffer(ev.data)
	if err != nil || len(packets) == 0 {
		level.Debug(r.logger).Log("msg", "dropping undersized or malformed discovery datagram", "hook", ev.hook, "err", err)
		return
	}

	for _, pkt := range packets {
		r.handleDiscoveryPacket(ev.parent, service, pkt, ev.data)
	}
}

func (r *Router) handleDiscoveryPacket(parent *ParentInterface, service string, pkt *pppoe.PPPoEPacket, raw []byte) {
	realSession := service
	if tag, err := pkt.GetTag(pppoe.PPPoETagTypeServiceName); err == nil && len(tag.Data) > 0 {
		realSession = string(tag.Data)
	}

	var circuitID, remoteID string
	if tag, err := pkt.GetTag(pppoe.PPPoETagTypeVendorSpecific); err == nil {
		dsl := pppoe.ParseDSLForumVendorTag(tag.Data)
		circuitID, remoteID = dsl.AgentCircuitID, dsl.AgentRemoteID
	}

	chosen := r.selectLink(parent, service)
	if chosen == nil {
		level.Info(r.logger).Log("msg", "no eligible link for incoming request", "service", service, "peer", FormatMAC(pkt.SrcHWAddr, MACFormatUnixLike))
		return
	}

	if chosen.Template() {
		clone, err := r.upper.Instantiate(chosen)
		if err != nil {
			level.Warn(r.logger).Log("msg", "failed to instantiate link from template", "template", chosen.Name(), "err", err)
			return
		}
		r.AddLink(clone)
		chosen = clone
	}

	hostName, _ := os.Hostname()
	if err := chosen.AcceptIncoming(pkt.SrcHWAddr, realSession, circuitID, remoteID, raw, hostName); err != nil {
		level.Warn(r.logger).Log("msg", "failed to accept incoming request", "link", chosen.Name(), "err", err)
		if !chosen.Template() && chosen.State() == StateDown {
			r.RemoveLink(chosen)
		}
	}
}

// selectLink implements the Link selection algorithm of §4.6: the
// first (lowest id) non-busy, incoming-enabled PPPoE link bound to
// parent whose configured service matches.
func (r *Router) selectLink(parent *ParentInterface, service string) *Link {
	var chosen *Link
	for _, l := range r.linksSnapshot() {
		if l.Busy() {
			continue
		}
		if !l.cfg.Incoming {
			continue
		}
		if l.cfg.DerivePath() != parent.Path() {
			continue
		}
		if l.cfg.Service != service {
			continue
		}
		if chosen == nil || l.id < chosen.id {
			chosen = l
		}
	}
	return chosen
}
