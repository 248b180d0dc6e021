package gossip

import "testing"

func TestSweepThresholds(t *testing.T) {
	fd := FailureDetector{TFail: 5, TRemove: 20}
	m := NewMemberList(selfAddr, 0, 0)
	fresh, suspect, edge, gone := NewAddressID(2, 0), NewAddressID(3, 0), NewAddressID(4, 0), NewAddressID(5, 0)
	m.Merge(fresh, 1, 95)   // elapsed 5: not yet suspected
	m.Merge(suspect, 1, 94) // elapsed 6
	m.Merge(edge, 1, 80)    // elapsed 20: suspected, still present
	m.Merge(gone, 1, 79)    // elapsed 21

	res := fd.Sweep(m, 100)
	if e, _ := m.Get(fresh); e.Dead() {
		t.Fatalf("fresh entry marked dead: %+v", e)
	}
	if e, ok := m.Get(suspect); !ok || !e.Dead() {
		t.Fatalf("suspect entry = %+v, %v; want present and dead", e, ok)
	}
	if e, ok := m.Get(edge); !ok || !e.Dead() {
		t.Fatalf("entry at TRemove = %+v, %v; want present and dead", e, ok)
	}
	if _, ok := m.Get(gone); ok {
		t.Fatal("entry past TRemove still present")
	}
	if len(res.Removed) != 1 || res.Removed[0] != gone {
		t.Fatalf("Removed = %v", res.Removed)
	}
}

func TestSweepNeverTouchesSelf(t *testing.T) {
	fd := FailureDetector{TFail: 5, TRemove: 20}
	m := NewMemberList(selfAddr, 3, 0)

	fd.Sweep(m, 1000)
	if m.Len() != 1 {
		t.Fatalf("self evicted, Len = %d", m.Len())
	}
	if s := m.Self(); s.Heartbeat != 3 {
		t.Fatalf("self heartbeat = %d, want 3", s.Heartbeat)
	}
}

func TestSweepRemovesConsecutiveEntries(t *testing.T) {
	fd := FailureDetector{TFail: 5, TRemove: 20}
	m := NewMemberList(selfAddr, 0, 100)
	stale1, stale2, live := NewAddressID(2, 0), NewAddressID(3, 0), NewAddressID(4, 0)
	m.Merge(stale1, 1, 0)
	m.Merge(stale2, 1, 0)
	m.Merge(live, 1, 99)

	res := fd.Sweep(m, 100)
	if len(res.Removed) != 2 {
		t.Fatalf("Removed = %v, want both stale entries", res.Removed)
	}
	all := m.All()
	if len(all) != 2 || all[0].Addr != selfAddr || all[1].Addr != live {
		t.Fatalf("table after sweep = %v", all)
	}
}

func TestSweepReportsSuspicionOnce(t *testing.T) {
	fd := FailureDetector{TFail: 5, TRemove: 20}
	m := NewMemberList(selfAddr, 0, 0)
	m.Merge(peerA, 1, 0)

	if res := fd.Sweep(m, 6); len(res.Suspected) != 1 {
		t.Fatalf("first sweep Suspected = %v", res.Suspected)
	}
	if res := fd.Sweep(m, 7); len(res.Suspected) != 0 {
		t.Fatalf("second sweep Suspected = %v", res.Suspected)
	}
}
