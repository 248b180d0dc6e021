package gossip

import (
	"errors"
	"testing"
)

type captureReceiver struct {
	got [][]byte
}

func (c *captureReceiver) Deliver(p []byte) { c.got = append(c.got, p) }

func TestNetworkDelivers(t *testing.T) {
	n := NewNetwork(0, 1)
	a, b := NewAddressID(1, 0), NewAddressID(2, 0)
	rb := &captureReceiver{}
	n.Attach(b, rb)

	if err := n.Send(a, b, []byte{1, 2}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(rb.got) != 1 || len(rb.got[0]) != 2 {
		t.Fatalf("delivered = %v", rb.got)
	}

	sent, recv, dropped := n.Stats()
	if sent[a] != 1 || recv[b] != 1 || dropped != 0 {
		t.Fatalf("Stats = %v %v %d", sent, recv, dropped)
	}
}

func TestNetworkDropAll(t *testing.T) {
	n := NewNetwork(1, 1)
	a, b := NewAddressID(1, 0), NewAddressID(2, 0)
	rb := &captureReceiver{}
	n.Attach(b, rb)

	for i := 0; i < 10; i++ {
		if err := n.Send(a, b, []byte{0}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if len(rb.got) != 0 {
		t.Fatalf("%d messages got through at drop rate 1", len(rb.got))
	}
	sent, recv, dropped := n.Stats()
	if sent[a] != 10 || recv[b] != 0 || dropped != 10 {
		t.Fatalf("Stats = %v %v %d", sent, recv, dropped)
	}

	n.SetDropRate(0)
	_ = n.Send(a, b, []byte{0})
	if len(rb.got) != 1 {
		t.Fatal("message dropped after SetDropRate(0)")
	}
}

func TestNetworkUnknownDestination(t *testing.T) {
	n := NewNetwork(0, 1)
	a, b := NewAddressID(1, 0), NewAddressID(2, 0)
	if err := n.Send(a, b, nil); !errors.Is(err, ErrUnknownDestination) {
		t.Fatalf("Send to unattached = %v", err)
	}

	n.Attach(b, &captureReceiver{})
	n.Detach(b)
	if err := n.Send(a, b, nil); !errors.Is(err, ErrUnknownDestination) {
		t.Fatalf("Send after Detach = %v", err)
	}
}

func TestInboxFIFO(t *testing.T) {
	var q Inbox
	buf := []byte{1}
	q.Push(buf)
	q.Push([]byte{2})
	buf[0] = 9 // Push copies

	if q.Len() != 2 {
		t.Fatalf("Len = %d", q.Len())
	}
	out := q.Drain()
	if len(out) != 2 || out[0][0] != 1 || out[1][0] != 2 {
		t.Fatalf("Drain = %v", out)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Fatal("inbox not empty after Drain")
	}
}

func TestInboxLimit(t *testing.T) {
	q := Inbox{Limit: 1}
	if !q.Push([]byte{1}) {
		t.Fatal("first Push rejected")
	}
	if q.Push([]byte{2}) {
		t.Fatal("Push past Limit accepted")
	}
	if out := q.Drain(); len(out) != 1 || out[0][0] != 1 {
		t.Fatalf("Drain = %v", out)
	}
	if !q.Push([]byte{3}) {
		t.Fatal("Push after Drain rejected")
	}
}

func TestManualClock(t *testing.T) {
	var c ManualClock
	if c.Now() != 0 {
		t.Fatalf("Now = %d", c.Now())
	}
	if got := c.Advance(3); got != 3 || c.Now() != 3 {
		t.Fatalf("Advance = %d, Now = %d", got, c.Now())
	}
}
