package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type pipe struct {
	io.Reader
	*bytes.Buffer
}

func newPipe(input string) *pipe {
	return &pipe{Reader: strings.NewReader(input), Buffer: &bytes.Buffer{}}
}

func (p *pipe) Read(b []byte) (int, error) { return p.Reader.Read(b) }

func (p *pipe) Write(b []byte) (int, error) { return p.Buffer.Write(b) }

func TestConsoleLines(t *testing.T) {
	p := newPipe("G1 X1\n\n  M105  \nG28\n")
	c := New(p, zerolog.Nop())

	go c.Run(context.Background())

	var got []string
	for line := range c.Lines() {
		got = append(got, line)
	}

	want := []string{"G1 X1", "M105", "G28"}
	if len(got) != len(want) {
		t.Fatalf("lines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConsoleReply(t *testing.T) {
	p := newPipe("")
	c := New(p, zerolog.Nop())

	c.Reply("ok")
	c.Reply("error: something")

	if got := p.Buffer.String(); got != "ok\nerror: something\n" {
		t.Errorf("output = %q", got)
	}
}

func TestConsoleRunStopsOnCancel(t *testing.T) {
	// An unconsumed line keeps Run blocked on the channel send until the
	// context is cancelled.
	p := newPipe("G1 X1\n")
	c := New(p, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
