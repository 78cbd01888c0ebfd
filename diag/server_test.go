package diag

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type staticStatus struct{ s Status }

func (ss staticStatus) Status() Status { return ss.s }

func TestServerHealthz(t *testing.T) {
	srv := NewServer(":0", staticStatus{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServerStatus(t *testing.T) {
	src := staticStatus{s: Status{
		Position:   map[string]float64{"x": 10, "y": 0, "z": 0, "e": 0},
		Homed:      map[string]bool{"x": true},
		Feedrate:   1200,
		Multiplier: 1,
		Channels: []ChannelStatus{
			{Name: "hotend", State: "regulating", Measured: 199.5, Setpoint: 200, Duty: 0.7},
		},
		FanSpeed: 128,
	}}
	srv := NewServer(":0", src, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Position["x"] != 10 || got.Feedrate != 1200 {
		t.Errorf("status = %+v", got)
	}
	if len(got.Channels) != 1 || got.Channels[0].Name != "hotend" {
		t.Errorf("channels = %+v", got.Channels)
	}
}

func TestServerMetrics(t *testing.T) {
	ObserveThermal("hotend", 200, 200, 0.5)
	CountCommand("linear-move", true)
	AddSteps("x", 63)

	srv := NewServer(":0", staticStatus{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
