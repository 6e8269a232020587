package phys

import (
	"strings"

	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
)

// listenHookPrefix is the kernel hook-name prefix used for every
// listen registration; the suffix is the matched service name.
const listenHookPrefix = "listen-"

// ListenEntry is a per-(parent, service-name) registration, mirroring
// the kernel's "listen-<service>" hook on the PPPoE node.  It exists
// iff at least one incoming-enabled Link with that service is bound to
// the parent.
type ListenEntry struct {
	parent  *ParentInterface
	service string
	refs    int
}

// Service returns the service name this entry answers for.
func (e *ListenEntry) Service() string { return e.service }

// Refs returns the current reference count, for tests asserting
// invariant 3.
func (e *ListenEntry) Refs() int { return e.refs }

func listenHookName(service string) string {
	return listenHookPrefix + service
}

// isListenHook reports whether hook names a listen registration, and
// if so, the service name it carries.
func isListenHook(hook string) (service string, ok bool) {
	if strings.HasPrefix(hook, listenHookPrefix) {
		return strings.TrimPrefix(hook, listenHookPrefix), true
	}
	return "", false
}

// listen looks up an existing ListenEntry for service on p; if absent
// it creates one, connects the kernel "listen-<service>" hook between
// the control socket node and the PPPoE node, and sends PPPOE_LISTEN.
// Both creation and refcounting are idempotent per-link: each Link
// owns at most one listen reference at a time.
func (p *ParentInterface) listen(service string) (*ListenEntry, error) {
	for _, e := range p.listens {
		if e.service == service {
			e.refs++
			return e, nil
		}
	}

	hook := listenHookName(service)
	if err := p.session.Connect(p.path, hook, p.path, hook); err != nil {
		return nil, newError(ErrKindKernelPlumbing, "listen: connect hook", err)
	}
	if err := p.session.SendMessage(hook, netgraph.PPPoECookie, netgraph.CmdPPPoEListen, []byte(service)); err != nil {
		_ = p.session.Disconnect(hook)
		return nil, newError(ErrKindKernelPlumbing, "listen: PPPOE_LISTEN", err)
	}

	e := &ListenEntry{parent: p, service: service, refs: 1}
	p.listens = append(p.listens, e)
	return e, nil
}

// unlisten releases one reference on e; when the reference count
// drops to zero the "listen-<service>" hook is disconnected and the
// entry is removed from its parent.
func (p *ParentInterface) unlisten(e *ListenEntry) error {
	if e == nil {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	for i, got := range p.listens {
		if got == e {
			p.listens = append(p.listens[:i], p.listens[i+1:]...)
			break
		}
	}
	if err := p.session.Disconnect(listenHookName(e.service)); err != nil {
		return newError(ErrKindKernelPlumbing, "unlisten: disconnect hook", err)
	}
	return nil
}
