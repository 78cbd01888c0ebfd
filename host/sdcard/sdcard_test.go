package sdcard

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"printd/core/sim"
	"printd/diag"
	"printd/gcode"
)

// fakeRunner records dispatched lines and can block mid-print so tests
// can pause at a known spot.
type fakeRunner struct {
	clock *sim.Clock

	mu         sync.Mutex
	lines      []string
	blockAfter int
	reached    chan struct{}
}

func (r *fakeRunner) DispatchLine(ctx context.Context, _ *gcode.Parser, line string, _ func(string)) error {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	n := len(r.lines)
	block := r.blockAfter > 0 && n >= r.blockAfter
	if block && r.reached != nil {
		close(r.reached)
		r.reached = nil
	}
	r.mu.Unlock()

	if r.clock != nil {
		r.clock.Advance(time.Second)
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (r *fakeRunner) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type sdFixture struct {
	dir    string
	clock  *sim.Clock
	bus    *diag.Bus
	runner *fakeRunner
	ctl    *Controller
}

func newSDFixture(t *testing.T) *sdFixture {
	t.Helper()
	f := &sdFixture{
		dir:   t.TempDir(),
		clock: sim.NewClock(),
		bus:   diag.NewBus(),
	}
	f.runner = &fakeRunner{clock: f.clock}
	f.ctl = New(f.dir, f.clock, f.bus, zerolog.Nop())
	f.ctl.Bind(f.runner)
	return f
}

func (f *sdFixture) writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func (f *sdFixture) waitEvent(t *testing.T, events <-chan diag.Event, kind diag.EventKind) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("no %v event", kind)
		}
	}
}

func TestMountMissingDirectory(t *testing.T) {
	ctl := New(filepath.Join(t.TempDir(), "absent"), sim.NewClock(), diag.NewBus(), zerolog.Nop())
	if err := ctl.Mount(); err == nil {
		t.Fatal("mount of a missing directory succeeded")
	}
}

func TestListFiltersGcodeFiles(t *testing.T) {
	f := newSDFixture(t)
	f.writeFile(t, "benchy.gcode", "G28\n")
	f.writeFile(t, "CUBE.GCODE", "G28\n")
	f.writeFile(t, "notes.txt", "not a print\n")
	if err := os.Mkdir(filepath.Join(f.dir, "sub.gcode"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ctl.List(); err == nil {
		t.Fatal("list before mount succeeded")
	}
	if err := f.ctl.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	names, err := f.ctl.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"CUBE.GCODE", "benchy.gcode"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSelectValidation(t *testing.T) {
	f := newSDFixture(t)
	f.writeFile(t, "benchy.gcode", "G28\n")

	if err := f.ctl.Select("benchy.gcode"); err == nil {
		t.Error("select before mount succeeded")
	}
	if err := f.ctl.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := f.ctl.Select("../escape.gcode"); err == nil {
		t.Error("path traversal accepted")
	}
	if err := f.ctl.Select(""); err == nil {
		t.Error("empty filename accepted")
	}
	if err := f.ctl.Select("missing.gcode"); err == nil {
		t.Error("missing file accepted")
	}
	if err := f.ctl.Select("benchy.gcode"); err != nil {
		t.Errorf("select: %v", err)
	}
}

func TestPrintRunsFile(t *testing.T) {
	f := newSDFixture(t)
	f.writeFile(t, "benchy.gcode", "G28\nG1 X10\n\nM104 S200\n")
	events, cancel := f.bus.Subscribe(8)
	defer cancel()

	if err := f.ctl.Start(); err == nil {
		t.Fatal("start without a selected file succeeded")
	}
	if err := f.ctl.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := f.ctl.Select("benchy.gcode"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.ctl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.waitEvent(t, events, diag.EventPrintComplete)

	got := f.runner.recorded()
	want := []string{"G28", "G1 X10", "M104 S200"}
	if len(got) != len(want) {
		t.Fatalf("dispatched = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	elapsed, printing := f.ctl.PrintTime()
	if printing {
		t.Error("still printing after completion")
	}
	if elapsed != 3*time.Second {
		t.Errorf("elapsed = %v, want 3s", elapsed)
	}
}

func TestPauseAndResume(t *testing.T) {
	f := newSDFixture(t)
	f.writeFile(t, "long.gcode", "G1 X1\nG1 X2\nG1 X3\nG1 X4\nG1 X5\n")
	events, cancel := f.bus.Subscribe(8)
	defer cancel()

	reached := make(chan struct{})
	f.runner.mu.Lock()
	f.runner.blockAfter = 3
	f.runner.reached = reached
	f.runner.mu.Unlock()

	if err := f.ctl.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := f.ctl.Select("long.gcode"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.ctl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.ctl.Start(); err == nil {
		t.Error("second start while printing succeeded")
	}

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("print never reached the blocking line")
	}
	if err := f.ctl.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, printing := f.ctl.PrintTime(); printing {
		t.Error("printing after pause")
	}

	f.runner.mu.Lock()
	f.runner.blockAfter = 0
	f.runner.mu.Unlock()

	if err := f.ctl.Start(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	f.waitEvent(t, events, diag.EventPrintComplete)

	// The line in flight at the pause is consumed, not replayed.
	got := f.runner.recorded()
	want := []string{"G1 X1", "G1 X2", "G1 X3", "G1 X4", "G1 X5"}
	if len(got) != len(want) {
		t.Fatalf("dispatched = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReleaseDropsSelection(t *testing.T) {
	f := newSDFixture(t)
	f.writeFile(t, "benchy.gcode", "G28\n")

	if err := f.ctl.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := f.ctl.Select("benchy.gcode"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.ctl.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.ctl.Start(); err == nil {
		t.Error("start after release succeeded")
	}
	if _, err := f.ctl.List(); err == nil {
		t.Error("list after release succeeded")
	}
}
