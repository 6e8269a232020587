package phys

import (
	"testing"

	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
)

func TestParentTableAcquireSharesEntry(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 0, testLogger())

	p1, err := table.acquire("eth0:", "eth0", "orphans")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if p1.Refs() != 1 {
		t.Fatalf("expected refs 1, got %d", p1.Refs())
	}

	p2, err := table.acquire("eth0:", "eth0", "orphans")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("expected the same ParentInterface for a repeated path")
	}
	if p1.Refs() != 2 {
		t.Fatalf("expected refs 2 after second acquire, got %d", p1.Refs())
	}

	if err := table.release(p1); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if p1.Refs() != 1 {
		t.Fatalf("expected refs 1 after one release, got %d", p1.Refs())
	}
	if len(table.All()) != 1 {
		t.Fatalf("expected entry to still be present")
	}

	if err := table.release(p1); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if len(table.All()) != 0 {
		t.Fatalf("expected entry to be dropped once refcount reached zero")
	}
}

func TestParentTableAcquireDistinctPaths(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 0, testLogger())

	p1, err := table.acquire("eth0:", "eth0", "orphans")
	if err != nil {
		t.Fatalf("acquire eth0: %v", err)
	}
	p2, err := table.acquire("eth1:", "eth1", "orphans")
	if err != nil {
		t.Fatalf("acquire eth1: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct ParentInterface entries for distinct paths")
	}
	if len(table.All()) != 2 {
		t.Fatalf("expected 2 live entries, got %d", len(table.All()))
	}
}

func TestParentTableCapacityExhausted(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 1, testLogger())

	if _, err := table.acquire("eth0:", "eth0", "orphans"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, err := table.acquire("eth1:", "eth1", "orphans")
	if err == nil {
		t.Fatalf("expected resource-exhaustion error when table is at capacity")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != ErrKindResourceExhaustion {
		t.Fatalf("expected ErrKindResourceExhaustion, got %v", err)
	}
}

func TestParentTableReleaseNilIsNoop(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 0, testLogger())
	if err := table.release(nil); err != nil {
		t.Fatalf("release(nil) should be a no-op, got %v", err)
	}
}

func TestParentTableAdoptsExistingPPPoEHook(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 0, testLogger())

	session, err := transport.NewSocketPair("eth0:")
	if err != nil {
		t.Fatalf("new socket pair: %v", err)
	}
	ns := session.(*netgraph.NullSession)
	ns.SetListHooksResult(func(path string) (netgraph.NodeInfo, error) {
		return netgraph.NodeInfo{
			NodeType: netgraph.NodeTypeEther,
			Hooks:    []string{"orphans"},
			PeerType: map[string]string{"orphans": netgraph.NodeTypePPPoE},
		}, nil
	})

	p, err := table.acquire("eth0:", "eth0", "orphans")
	if err != nil {
		t.Fatalf("acquire with pre-existing pppoe hook: %v", err)
	}
	if p.Path() != "eth0:" {
		t.Fatalf("unexpected path %q", p.Path())
	}
}

func TestParentTableRejectsWrongPeerType(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 0, testLogger())

	session, err := transport.NewSocketPair("eth0:")
	if err != nil {
		t.Fatalf("new socket pair: %v", err)
	}
	ns := session.(*netgraph.NullSession)
	ns.SetListHooksResult(func(path string) (netgraph.NodeInfo, error) {
		return netgraph.NodeInfo{
			NodeType: netgraph.NodeTypeEther,
			Hooks:    []string{"orphans"},
			PeerType: map[string]string{"orphans": "tee"},
		}, nil
	})

	_, err = table.acquire("eth0:", "eth0", "orphans")
	if err == nil {
		t.Fatalf("expected an error when the attach hook is held by a non-pppoe peer")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != ErrKindProtocol {
		t.Fatalf("expected ErrKindProtocol, got %v", err)
	}
}

func TestParentTableMissingEtherNodeType(t *testing.T) {
	transport := netgraph.NewNull()
	table := NewParentTable(transport, 0, testLogger())

	session, err := transport.NewSocketPair("eth0:")
	if err != nil {
		t.Fatalf("new socket pair: %v", err)
	}
	ns := session.(*netgraph.NullSession)
	ns.SetNodeTypes(map[string]bool{})

	_, err = table.acquire("eth0:", "eth0", "orphans")
	if err == nil {
		t.Fatalf("expected an error when ng_ether cannot be loaded")
	}
}
