package gossip

// Tracks this node's view of the group: an insertion-ordered list of
// entries keyed by address, self always at index 0. Only the gossiper's
// tick goroutine touches it, so it carries no lock.

// Entry is one row of the membership table.
type Entry struct {
	Addr       Address
	Heartbeat  int64 // HeartbeatDead once suspected
	LastUpdate int64 // local clock, last time Heartbeat increased
}

// Dead reports whether the entry is marked failed.
func (e Entry) Dead() bool { return e.Heartbeat == HeartbeatDead }

// MergeResult says what a merge did to the table.
type MergeResult uint8

const (
	MergeIgnored MergeResult = iota
	MergeInserted
	MergeUpdated
	MergeMarkedDead
)

func (r MergeResult) String() string {
	switch r {
	case MergeInserted:
		return "inserted"
	case MergeUpdated:
		return "updated"
	case MergeMarkedDead:
		return "marked_dead"
	default:
		return "ignored"
	}
}

// MemberList is the authoritative local membership table.
type MemberList struct {
	entries []Entry
	index   map[Address]int
}

// NewMemberList creates a table containing only self.
func NewMemberList(self Address, heartbeat, now int64) *MemberList {
	return &MemberList{
		entries: []Entry{{Addr: self, Heartbeat: heartbeat, LastUpdate: now}},
		index:   map[Address]int{self: 0},
	}
}

func (m *MemberList) Self() Entry { return m.entries[0] }

func (m *MemberList) Len() int { return len(m.entries) }

// All returns a copy of the table in order.
func (m *MemberList) All() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Peers returns every address except self, in table order.
func (m *MemberList) Peers() []Address {
	out := make([]Address, 0, len(m.entries)-1)
	for _, e := range m.entries[1:] {
		out = append(out, e.Addr)
	}
	return out
}

func (m *MemberList) Get(addr Address) (Entry, bool) {
	i, ok := m.index[addr]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

// SetSelfHeartbeat reflects the local heartbeat into the self entry.
func (m *MemberList) SetSelfHeartbeat(heartbeat, now int64) {
	m.entries[0].Heartbeat = heartbeat
	m.entries[0].LastUpdate = now
}

// Merge folds one observation into the table. It is the only way remote
// information enters the table:
//   - unknown address: insert unless the report is a death report
//   - death report: always wins over a live entry
//   - dead entry: never revived
//   - otherwise: accept strictly greater heartbeats only
func (m *MemberList) Merge(addr Address, heartbeat, now int64) MergeResult {
	i, ok := m.index[addr]
	if !ok {
		if heartbeat == HeartbeatDead {
			return MergeIgnored
		}
		m.entries = append(m.entries, Entry{Addr: addr, Heartbeat: heartbeat, LastUpdate: now})
		m.index[addr] = len(m.entries) - 1
		return MergeInserted
	}

	e := &m.entries[i]
	switch {
	case heartbeat == HeartbeatDead:
		if e.Dead() {
			return MergeIgnored
		}
		e.Heartbeat = HeartbeatDead
		return MergeMarkedDead
	case e.Dead():
		return MergeIgnored
	case heartbeat > e.Heartbeat:
		e.Heartbeat = heartbeat
		e.LastUpdate = now
		return MergeUpdated
	default:
		return MergeIgnored
	}
}

// remove deletes the entry at i (i > 0) keeping order and the index in sync.
func (m *MemberList) remove(i int) Entry {
	e := m.entries[i]
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, e.Addr)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].Addr] = j
	}
	return e
}
