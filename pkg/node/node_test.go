package node

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DerekChowAHOP/membership-protocol/pkg/gossip"
)

type nopSender struct{}

func (nopSender) Send(_, _ gossip.Address, _ []byte) error { return nil }

func newTestNode(t *testing.T, introducer bool) (*Node, *gossip.Gossiper) {
	t.Helper()
	self := gossip.NewAddressID(1, 7946)
	g, err := gossip.New(self, nopSender{}, gossip.DefaultConfig())
	if err != nil {
		t.Fatalf("gossip.New: %v", err)
	}
	intro := self
	if !introducer {
		intro = gossip.NewAddressID(2, 7946)
	}
	if err := g.Start(intro); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return NewNode(g, ":0"), g
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	n, _ := newTestNode(t, true)
	if rec := get(t, n.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz in group = %d", rec.Code)
	}

	joining, _ := newTestNode(t, false)
	rec := get(t, joining.Handler(), "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz while joining = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "JOINING") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMembers(t *testing.T) {
	n, g := newTestNode(t, true)
	g.Deliver(gossip.EncodePing([]gossip.Entry{
		{Addr: gossip.NewAddressID(3, 7946), Heartbeat: 4},
	}))
	g.Tick()

	rec := get(t, n.Handler(), "/members")
	if rec.Code != http.StatusOK {
		t.Fatalf("members = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var got []memberView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("members = %+v", got)
	}
	if got[0].Addr != "1.0.0.0:7946" || got[1].Addr != "3.0.0.0:7946" || got[1].Heartbeat != 4 || got[1].Dead {
		t.Fatalf("members = %+v", got)
	}
}

func TestInfo(t *testing.T) {
	n, _ := newTestNode(t, true)
	rec := get(t, n.Handler(), "/info")

	var got struct {
		Self    string `json:"self"`
		Status  string `json:"status"`
		Members int    `json:"members"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Self != "1.0.0.0:7946" || got.Status != "IN_GROUP" || got.Members != 1 {
		t.Fatalf("info = %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	n, _ := newTestNode(t, true)
	get(t, n.Handler(), "/healthz")

	rec := get(t, n.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "membership_members") {
		t.Fatal("members gauge missing from /metrics")
	}
}

func TestNormalizeHostPort(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"10.0.0.1:9000", "10.0.0.1:9000"},
		{"udp://10.0.0.1:9000", "10.0.0.1:9000"},
		{"10.0.0.1", "10.0.0.1:7946"},
		{"udp://10.0.0.1", "10.0.0.1:7946"},
	}
	for _, tt := range tests {
		if got := NormalizeHostPort(tt.in, "7946"); got != tt.want {
			t.Errorf("NormalizeHostPort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("udp://127.0.0.1", "7946")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.String() != "127.0.0.1:7946" {
		t.Fatalf("ParseAddress = %v", a)
	}
}
