// Package console pumps newline-delimited G-code between a byte stream
// and the dispatcher.
package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Console adapts any io.ReadWriter (a serial port, a stdin/stdout pair,
// an in-memory pipe in tests) into a line source and reply sink.
type Console struct {
	rw  io.ReadWriter
	log zerolog.Logger

	lines chan string

	mu sync.Mutex // guards writes; replies and auto-reports interleave
}

// New wraps the stream. Run must be started before Lines yields anything.
func New(rw io.ReadWriter, log zerolog.Logger) *Console {
	return &Console{
		rw:    rw,
		log:   log.With().Str("task", "console").Logger(),
		lines: make(chan string),
	}
}

// Lines yields incoming command lines. The channel closes when the
// stream ends.
func (c *Console) Lines() <-chan string {
	return c.lines
}

// Run reads the stream until EOF, a read error, or cancellation. Blank
// lines are dropped here so the dispatcher only sees commands and
// comments.
func (c *Console) Run(ctx context.Context) error {
	defer close(c.lines)

	scanner := bufio.NewScanner(c.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("console read failed")
		return err
	}
	return nil
}

// Reply writes one response line back to the peer. Write failures are
// logged and dropped; the command already ran.
func (c *Console) Reply(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.rw, line+"\n"); err != nil {
		c.log.Warn().Err(err).Msg("console write failed")
	}
}
