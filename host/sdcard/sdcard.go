// Package sdcard backs the M20-M31 command family with a directory of
// G-code files. A started print feeds its lines through the same
// dispatcher as the console, one command at a time, so the two streams
// interleave without ever overlapping a move.
package sdcard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"printd/core"
	"printd/diag"
	"printd/gcode"
)

// LineRunner is the dispatcher surface the print task needs.
type LineRunner interface {
	DispatchLine(ctx context.Context, parser *gcode.Parser, line string, reply func(string)) error
}

// Controller implements the virtual SD card over a host directory.
type Controller struct {
	dir   string
	clock core.Clock
	bus   *diag.Bus
	log   zerolog.Logger

	runner LineRunner

	mu       sync.Mutex
	mounted  bool
	selected string
	lines    []string
	next     int
	printing bool
	started  time.Duration // clock time the current run began
	elapsed  time.Duration // accumulated across pauses
	cancel   context.CancelFunc
}

// New builds a controller over dir. Bind must be called before a print
// can start.
func New(dir string, clock core.Clock, bus *diag.Bus, log zerolog.Logger) *Controller {
	return &Controller{
		dir:   dir,
		clock: clock,
		bus:   bus,
		log:   log.With().Str("task", "sdcard").Logger(),
	}
}

// Bind attaches the dispatcher the print task submits lines to.
func (c *Controller) Bind(runner LineRunner) {
	c.mu.Lock()
	c.runner = runner
	c.mu.Unlock()
}

// Mount makes the directory available. It fails if the directory does
// not exist, mirroring a card that is not inserted.
func (c *Controller) Mount() error {
	info, err := os.Stat(c.dir)
	if err != nil {
		return fmt.Errorf("sdcard: mount %s: %w", c.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sdcard: %s is not a directory", c.dir)
	}
	c.mu.Lock()
	c.mounted = true
	c.mu.Unlock()
	return nil
}

// Release unmounts the card. A running print is paused first; the
// selection is dropped.
func (c *Controller) Release() error {
	c.Pause()
	c.mu.Lock()
	c.mounted = false
	c.selected = ""
	c.lines = nil
	c.next = 0
	c.mu.Unlock()
	return nil
}

// List returns the printable files on the card in name order.
func (c *Controller) List() ([]string, error) {
	c.mu.Lock()
	mounted := c.mounted
	c.mu.Unlock()
	if !mounted {
		return nil, fmt.Errorf("sdcard: not mounted")
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("sdcard: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".gcode") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Select loads the named file and rewinds to its first line.
func (c *Controller) Select(name string) error {
	if name == "" {
		return fmt.Errorf("sdcard: empty filename")
	}
	if name != filepath.Base(name) || name == ".." {
		return fmt.Errorf("sdcard: invalid filename %q", name)
	}

	c.mu.Lock()
	mounted, printing := c.mounted, c.printing
	c.mu.Unlock()
	if !mounted {
		return fmt.Errorf("sdcard: not mounted")
	}
	if printing {
		return fmt.Errorf("sdcard: print in progress")
	}

	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("sdcard: select %s: %w", name, err)
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	c.mu.Lock()
	c.selected = name
	c.lines = lines
	c.next = 0
	c.elapsed = 0
	c.mu.Unlock()

	c.log.Info().Str("file", name).Int("lines", len(lines)).Msg("file selected")
	return nil
}

// Start begins or resumes printing the selected file.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == "" {
		return fmt.Errorf("sdcard: no file selected")
	}
	if c.printing {
		return fmt.Errorf("sdcard: already printing")
	}
	if c.runner == nil {
		return fmt.Errorf("sdcard: no dispatcher bound")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.printing = true
	c.started = c.clock.Now()

	resumed := c.next > 0
	go c.printLoop(ctx, c.selected)

	kind := diag.EventPrintStarted
	detail := c.selected
	if resumed {
		detail += " (resumed)"
	}
	c.bus.Publish(diag.Event{Kind: kind, Source: "sdcard", Detail: detail})
	c.log.Info().Str("file", c.selected).Bool("resumed", resumed).Msg("print started")
	return nil
}

// Pause stops feeding lines. It returns immediately; a command already
// handed to the dispatcher is cancelled rather than waited for. The file
// position is kept so Start resumes where it left off.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.printing {
		return nil
	}
	c.cancel()
	c.cancel = nil
	c.printing = false
	c.elapsed += c.clock.Now() - c.started
	c.log.Info().Str("file", c.selected).Int("line", c.next).Msg("print paused")
	return nil
}

// PrintTime reports time spent printing the selected file and whether a
// print is running now.
func (c *Controller) PrintTime() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.printing {
		return c.elapsed + (c.clock.Now() - c.started), true
	}
	return c.elapsed, false
}

// printLoop feeds lines until the file ends or the context is cancelled.
// Command errors are logged and the print continues, same as a console
// stream; only cancellation stops it.
func (c *Controller) printLoop(ctx context.Context, name string) {
	parser := gcode.NewParser()
	for {
		// The run's own context is the authority: after a pause/resume
		// the state fields already describe the next run.
		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		if !c.printing || c.selected != name || c.next >= len(c.lines) {
			done := c.printing && c.selected == name
			if done {
				c.printing = false
				c.elapsed += c.clock.Now() - c.started
				if c.cancel != nil {
					c.cancel()
					c.cancel = nil
				}
			}
			c.mu.Unlock()
			if done {
				c.bus.Publish(diag.Event{Kind: diag.EventPrintComplete, Source: "sdcard", Detail: name})
				c.log.Info().Str("file", name).Msg("print complete")
			}
			return
		}
		line := c.lines[c.next]
		c.next++
		runner := c.runner
		c.mu.Unlock()

		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := runner.DispatchLine(ctx, parser, line, nil); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Str("file", name).Err(err).Msg("print line failed")
		}
	}
}
