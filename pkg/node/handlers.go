package node

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/DerekChowAHOP/membership-protocol/pkg/gossip"
)

// Healthz returns 200 once the node is in the group and 503 while it is
// still joining or after it stopped.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	status := n.gsp.Status()
	if status != gossip.StatusInGroup {
		http.Error(w, status.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Info writes a JSON payload with the process ID, protocol state and table size.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	type resp struct {
		PID       int       `json:"pid"`
		Now       time.Time `json:"now"`
		Uptime    string    `json:"uptime"`
		Self      string    `json:"self"`
		Status    string    `json:"status"`
		Heartbeat int64     `json:"heartbeat"`
		Members   int       `json:"members"`
	}
	writeJSON(w, resp{
		PID:       os.Getpid(),
		Now:       time.Now(),
		Uptime:    time.Since(n.started).Round(time.Second).String(),
		Self:      n.gsp.Self().String(),
		Status:    n.gsp.Status().String(),
		Heartbeat: n.gsp.Heartbeat(),
		Members:   len(n.gsp.Members()),
	})
}

type memberView struct {
	Addr       string `json:"addr"`
	Heartbeat  int64  `json:"heartbeat"`
	LastUpdate int64  `json:"last_update"`
	Dead       bool   `json:"dead"`
}

// Members writes the membership table, self first.
func (n *Node) Members(w http.ResponseWriter, _ *http.Request) {
	entries := n.gsp.Members()
	out := make([]memberView, 0, len(entries))
	for _, e := range entries {
		out = append(out, memberView{
			Addr:       e.Addr.String(),
			Heartbeat:  e.Heartbeat,
			LastUpdate: e.LastUpdate,
			Dead:       e.Dead(),
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
