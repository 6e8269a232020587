//go:build !freebsd

package netgraph

import "fmt"

// NewRawTransport is unavailable outside FreeBSD: netgraph(4) is a
// FreeBSD kernel subsystem and there is no equivalent socket family on
// other platforms.  Callers building for other platforms should use
// Null for development and testing.
func NewRawTransport() Transport {
	return unsupportedTransport{}
}

type unsupportedTransport struct{}

func (unsupportedTransport) NewSocketPair(path string) (Session, error) {
	return nil, fmt.Errorf("netgraph transport is only supported on freebsd")
}

func (unsupportedTransport) SetInterfaceUp(iface string) error {
	return fmt.Errorf("netgraph transport is only supported on freebsd")
}

func (unsupportedTransport) LoadModule(name string) error {
	return fmt.Errorf("netgraph transport is only supported on freebsd")
}
