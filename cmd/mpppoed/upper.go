package main

import (
	"fmt"

	"github.com/AxeyGabriel/mpd-ng/phys"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// linkRegistrar is the subset of *phys.Router a daemonUpperLayer needs
// to mint ids for and register clones produced by Instantiate.
type linkRegistrar interface {
	NextLinkID() uint32
	AddLink(l *phys.Link)
}

// daemonUpperLayer is the upstream phys-layer collaborator cmd/mpppoed
// supplies to every Link. Negotiating PPP itself is out of scope here:
// a per-session hook is handed off to whatever is already listening on
// "ppp-<link name>" on the same parent graph path (an external ng_ppp
// or ng_socket node started independently of this daemon), and this
// layer's only job is bookkeeping and logging the handoff.
type daemonUpperLayer struct {
	logger    log.Logger
	registrar linkRegistrar
}

func newDaemonUpperLayer(logger log.Logger) *daemonUpperLayer {
	return &daemonUpperLayer{logger: logger}
}

// setRegistrar wires the Router once it exists; Instantiate needs it to
// mint ids and register the clones it produces, and Router itself is
// only constructed after this upper layer, so the two are tied together
// after the fact rather than at construction.
func (u *daemonUpperLayer) setRegistrar(r linkRegistrar) {
	u.registrar = r
}

func upstreamHookName(link *phys.Link) string {
	return "ppp-" + link.Name()
}

func (u *daemonUpperLayer) RequestUpperHook(link *phys.Link) (path, hook string, err error) {
	return link.ParentPath(), upstreamHookName(link), nil
}

func (u *daemonUpperLayer) NotifyUp(link *phys.Link) {
	level.Info(u.logger).Log("msg", "link up", "link", link.Name(),
		"peer", phys.FormatMAC(link.PeerMAC(), phys.MACFormatUnixLike), "session", link.RealSession())
}

func (u *daemonUpperLayer) NotifyDown(link *phys.Link, cause string) {
	level.Info(u.logger).Log("msg", "link down", "link", link.Name(), "cause", cause)
}

func (u *daemonUpperLayer) NotifyIncoming(link *phys.Link) {
	level.Info(u.logger).Log("msg", "incoming call accepted", "link", link.Name(),
		"peer", phys.FormatMAC(link.PeerMAC(), phys.MACFormatUnixLike))
}

func (u *daemonUpperLayer) Instantiate(template *phys.Link) (*phys.Link, error) {
	if u.registrar == nil {
		return nil, fmt.Errorf("daemon upper layer not wired to a registrar")
	}
	clone := template.Clone(u.registrar.NextLinkID())
	u.registrar.AddLink(clone)
	level.Debug(u.logger).Log("msg", "cloned template for incoming call", "template", template.Name(), "clone_id", clone.ID())
	return clone, nil
}
