package phys

import (
	"testing"
	"time"

	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
)

func newTestLink(t *testing.T, transport *netgraph.Null, id uint32, name string, incoming bool, upper *stubUpper) (*Link, *ParentTable) {
	t.Helper()
	cfg := NewConfig()
	cfg.Iface = "eth0"
	cfg.Service = "isp"
	cfg.Incoming = incoming
	table := NewParentTable(transport, 0, testLogger())
	l := NewLink(id, name, cfg, table, upper, testLogger())
	l.SetSessionRegistrar(noopRegistrar{})
	return l, table
}

func TestLinkOpenOutgoingArmsTimerAndConnects(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, table := newTestLink(t, transport, 1, "uplink", false, upper)

	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.State() != StateConnecting {
		t.Fatalf("expected state CONNECTING, got %s", l.State())
	}
	if !l.TimerArmed() {
		t.Fatalf("expected connect timer to be armed")
	}
	if table.entries[0].Refs() != 1 {
		t.Fatalf("expected one parent reference")
	}

	ns := transport.Session("eth0:").(*netgraph.NullSession)
	var sawConnect, sawPPPoEConnect bool
	for _, c := range ns.Calls {
		if c.Op == "Connect" && c.Hook == l.hookName() {
			sawConnect = true
		}
		if c.Op == "SendMessage" && c.Cmd == netgraph.CmdPPPoEConnect {
			sawPPPoEConnect = true
		}
	}
	if !sawConnect || !sawPPPoEConnect {
		t.Fatalf("expected per-session hook connect and PPPOE_CONNECT, calls: %+v", ns.Calls)
	}
}

func TestLinkOpenPolicyErrorWhenBusy(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)

	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	err := l.Open()
	if err == nil {
		t.Fatalf("expected a policy error opening a link that is already CONNECTING")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != ErrKindPolicy {
		t.Fatalf("expected ErrKindPolicy, got %v", err)
	}
}

func TestLinkHandleSuccessOpenedReachesUp(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)

	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.handleSuccess(); err != nil {
		t.Fatalf("handleSuccess: %v", err)
	}
	if l.State() != StateUp {
		t.Fatalf("expected state UP, got %s", l.State())
	}
	if l.TimerArmed() {
		t.Fatalf("connect timer should be stopped once UP")
	}
	if len(upper.upCalls) != 1 {
		t.Fatalf("expected exactly one NotifyUp call, got %d", len(upper.upCalls))
	}
}

func TestLinkHandleFailReleasesParentAndCountsFailure(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, table := newTestLink(t, transport, 1, "uplink", false, upper)

	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.handleFail(); err != nil {
		t.Fatalf("handleFail: %v", err)
	}
	if l.State() != StateDown {
		t.Fatalf("expected state DOWN after fail, got %s", l.State())
	}
	if len(table.All()) != 0 {
		t.Fatalf("expected parent to be released back to zero entries")
	}
	if l.Stats().Failures != 1 {
		t.Fatalf("expected Failures counter to be 1, got %d", l.Stats().Failures)
	}
	if len(upper.downCalls) != 1 || upper.downCalls[0].cause != "connection failed" {
		t.Fatalf("unexpected NotifyDown calls: %+v", upper.downCalls)
	}
}

func TestLinkConnectTimeoutFiresAndTearsDown(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)
	l.connectTimeout = 10 * time.Millisecond

	timeoutChan := make(chan *Link, 1)
	l.SetTimeoutChan(timeoutChan)

	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	select {
	case fired := <-timeoutChan:
		if fired != l {
			t.Fatalf("expected the timeout channel to carry this link")
		}
	case <-time.After(time.Second):
		t.Fatalf("connect timer did not fire")
	}

	if err := l.HandleTimeout(); err != nil {
		t.Fatalf("HandleTimeout: %v", err)
	}
	if l.State() != StateDown {
		t.Fatalf("expected state DOWN after timeout, got %s", l.State())
	}
	if len(upper.downCalls) != 1 || upper.downCalls[0].cause != "connection timeout" {
		t.Fatalf("unexpected NotifyDown calls: %+v", upper.downCalls)
	}
	// A connect timeout is not counted as a protocol-level failure.
	if l.Stats().Failures != 0 {
		t.Fatalf("expected Failures counter to remain 0 on timeout, got %d", l.Stats().Failures)
	}
}

func TestLinkAcceptIncomingToUp(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, table := newTestLink(t, transport, 2, "dialin", true, upper)

	mac := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	raw := []byte("raw-padi-frame")
	if err := l.AcceptIncoming(mac, "isp", "Eth0/0:100", "abc123", raw, "myac"); err != nil {
		t.Fatalf("AcceptIncoming: %v", err)
	}
	if l.State() != StateConnecting {
		t.Fatalf("expected state CONNECTING, got %s", l.State())
	}
	if !l.Incoming() {
		t.Fatalf("expected Incoming() to be true")
	}
	if l.PeerMAC() != mac {
		t.Fatalf("unexpected peer MAC: %v", l.PeerMAC())
	}
	if l.RealSession() != "isp" || l.AgentCircuitID() != "Eth0/0:100" || l.AgentRemoteID() != "abc123" {
		t.Fatalf("unexpected session metadata: %s %s %s", l.RealSession(), l.AgentCircuitID(), l.AgentRemoteID())
	}
	if !l.TimerArmed() {
		t.Fatalf("expected connect timer to be armed")
	}
	if len(upper.incomingCalls) != 1 {
		t.Fatalf("expected exactly one NotifyIncoming call, got %d", len(upper.incomingCalls))
	}
	if table.entries[0].Refs() != 1 {
		t.Fatalf("expected one parent reference from AcceptIncoming")
	}

	// The peer hasn't opened yet: success should land in READY, not UP.
	if err := l.handleSuccess(); err != nil {
		t.Fatalf("handleSuccess: %v", err)
	}
	if l.State() != StateReady {
		t.Fatalf("expected state READY, got %s", l.State())
	}

	if err := l.Open(); err != nil {
		t.Fatalf("Open from READY: %v", err)
	}
	if l.State() != StateUp {
		t.Fatalf("expected state UP after completing the handshake, got %s", l.State())
	}
	if len(upper.upCalls) != 1 {
		t.Fatalf("expected exactly one NotifyUp call, got %d", len(upper.upCalls))
	}

	ns := transport.Session("eth0:").(*netgraph.NullSession)
	var sawTeePeer, sawOffer, sawService, sawReplay bool
	for _, c := range ns.Calls {
		switch {
		case c.Op == "MakePeer" && c.Path == netgraph.NodeTypeTee:
			sawTeePeer = true
		case c.Op == "SendMessage" && c.Cmd == netgraph.CmdPPPoEOffer:
			sawOffer = true
		case c.Op == "SendMessage" && c.Cmd == netgraph.CmdPPPoEService:
			sawService = true
		case c.Op == "SendData":
			sawReplay = true
		}
	}
	if !sawTeePeer || !sawOffer || !sawService || !sawReplay {
		t.Fatalf("missing expected kernel plumbing calls: %+v", ns.Calls)
	}
}

func TestLinkAcceptIncomingRejectsWhenNotDown(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)
	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	mac := [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	err := l.AcceptIncoming(mac, "isp", "", "", nil, "myac")
	if err == nil {
		t.Fatalf("expected AcceptIncoming to reject a link that isn't DOWN")
	}
}

func TestLinkListenAndUnlisten(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, table := newTestLink(t, transport, 3, "template", true, upper)

	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if l.listenEntry == nil {
		t.Fatalf("expected a listen entry after Listen")
	}
	if table.entries[0].Refs() != 1 {
		t.Fatalf("expected one parent reference held by Listen")
	}

	// Listen is idempotent.
	if err := l.Listen(); err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	if table.entries[0].Refs() != 1 {
		t.Fatalf("expected refcount to remain 1 after a repeated Listen")
	}

	if err := l.Unlisten(); err != nil {
		t.Fatalf("Unlisten: %v", err)
	}
	if l.listenEntry != nil {
		t.Fatalf("expected listen entry to be cleared")
	}
	if len(table.All()) != 0 {
		t.Fatalf("expected parent to be released once unlistened")
	}
}

func TestLinkListenNoopWhenNotIncoming(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, table := newTestLink(t, transport, 4, "outbound", false, upper)

	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if l.listenEntry != nil {
		t.Fatalf("expected no listen entry for a non-incoming link")
	}
	if len(table.All()) != 0 {
		t.Fatalf("expected no parent reference acquired")
	}
}

func TestLinkCloseIsNoopWhenDown(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)

	if err := l.Close(); err != nil {
		t.Fatalf("Close on a DOWN link should be a no-op, got %v", err)
	}
	if len(upper.downCalls) != 0 {
		t.Fatalf("expected no NotifyDown call for a no-op close")
	}
}

func TestLinkCloseTearsDownActiveSession(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, table := newTestLink(t, transport, 1, "uplink", false, upper)

	if err := l.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.State() != StateDown {
		t.Fatalf("expected state DOWN, got %s", l.State())
	}
	if len(table.All()) != 0 {
		t.Fatalf("expected parent to be released on close")
	}
	if len(upper.downCalls) != 1 || upper.downCalls[0].cause != "manual" {
		t.Fatalf("unexpected NotifyDown calls: %+v", upper.downCalls)
	}
}

func TestLinkGetMTUGetMRU(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)
	l.cfg.MaxPayload = 1500

	if got := l.GetMTU(true); got != pppoeMRU {
		t.Errorf("effective MTU without a SETMAXP reply: got %d, want %d", got, pppoeMRU)
	}
	if got := l.GetMTU(false); got != 1500 {
		t.Errorf("configured MTU: got %d, want 1500", got)
	}

	l.maxPayloadReply = true
	if got := l.GetMTU(true); got != 1500 {
		t.Errorf("effective MTU with a confirmed SETMAXP reply: got %d, want 1500", got)
	}
	if got := l.GetMRU(false); got != 1500 {
		t.Errorf("configured MRU with a confirmed SETMAXP reply: got %d, want 1500", got)
	}
}

func TestLinkHandleSetMaxPReply(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 1, "uplink", false, upper)
	l.cfg.MaxPayload = 1500

	l.handleSetMaxPReply(1500)
	if !l.maxPayloadReply {
		t.Fatalf("expected maxPayloadReply to be set on a matching reply")
	}

	l.maxPayloadReply = false
	l.handleSetMaxPReply(1492)
	if l.maxPayloadReply {
		t.Fatalf("expected a mismatched reply to be logged, not accepted")
	}
}

func TestHookLinkIDRoundTrip(t *testing.T) {
	transport := netgraph.NewNull()
	upper := &stubUpper{upperPath: "ppp0:", upperHook: "link"}
	l, _ := newTestLink(t, transport, 42, "uplink", false, upper)

	id, ok := hookLinkID(l.hookName())
	if !ok || id != 42 {
		t.Fatalf("hookLinkID(%q) = (%d, %v), want (42, true)", l.hookName(), id, ok)
	}

	if _, ok := hookLinkID("not-a-hook-name"); ok {
		t.Fatalf("expected an unrelated hook name not to parse")
	}
}
