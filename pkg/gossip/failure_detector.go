package gossip

// Timeout-based failure detection. An entry whose heartbeat has not
// increased for more than TFail ticks is marked dead and keeps being
// gossiped so peers learn of the failure; after TRemove ticks it is
// dropped from the table. Self (index 0) is never examined.

// FailureDetector sweeps a MemberList once per round.
type FailureDetector struct {
	TFail   int64
	TRemove int64
}

// SweepResult lists the addresses touched by one sweep.
type SweepResult struct {
	Suspected []Address
	Removed   []Address
}

// Sweep applies the timeouts relative to now.
func (fd FailureDetector) Sweep(m *MemberList, now int64) SweepResult {
	var res SweepResult
	for i := 1; i < len(m.entries); i++ {
		e := m.entries[i]
		elapsed := now - e.LastUpdate
		if elapsed > fd.TRemove {
			m.remove(i)
			i-- // the next entry shifted into slot i
			res.Removed = append(res.Removed, e.Addr)
			continue
		}
		if elapsed > fd.TFail && !e.Dead() {
			m.entries[i].Heartbeat = HeartbeatDead
			res.Suspected = append(res.Suspected, e.Addr)
		}
	}
	return res
}
