package phys

import (
	"fmt"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// testLogger mirrors the filtered logfmt logger the daemon's own test
// suite builds: debug and info only, written to stderr so `go test -v`
// shows the sequence of state transitions a scenario produced.
func testLogger() log.Logger {
	return level.NewFilter(log.NewLogfmtLogger(os.Stderr), level.AllowDebug(), level.AllowInfo())
}

// downCall records one NotifyDown invocation.
type downCall struct {
	link  *Link
	cause string
}

// stubUpper is a minimal UpperLayer collaborator for exercising Link
// and Router in isolation, in the null-object style of
// internal/netgraph.Null.
type stubUpper struct {
	upperPath, upperHook string
	upperErr             error

	upCalls       []*Link
	downCalls     []downCall
	incomingCalls []*Link

	instantiateFn func(template *Link) (*Link, error)
}

func (s *stubUpper) RequestUpperHook(l *Link) (string, string, error) {
	return s.upperPath, s.upperHook, s.upperErr
}

func (s *stubUpper) NotifyUp(l *Link) {
	s.upCalls = append(s.upCalls, l)
}

func (s *stubUpper) NotifyDown(l *Link, cause string) {
	s.downCalls = append(s.downCalls, downCall{link: l, cause: cause})
}

func (s *stubUpper) NotifyIncoming(l *Link) {
	s.incomingCalls = append(s.incomingCalls, l)
}

func (s *stubUpper) Instantiate(template *Link) (*Link, error) {
	if s.instantiateFn != nil {
		return s.instantiateFn(template)
	}
	return nil, fmt.Errorf("instantiate not configured for this test")
}

// noopRegistrar satisfies SessionRegistrar without starting any reader
// goroutines, for tests that don't need the Router's dispatch loop.
type noopRegistrar struct{}

func (noopRegistrar) RegisterSession(p *ParentInterface) {}
