// Package sim provides simulated implementations of the core capability
// interfaces for host-side runs and tests. Pins, PWM outputs and ADC
// channels record what the firmware does to them; the clock can run in
// virtual time so pulse trains and control loops execute instantly but
// deterministically.
package sim

import (
	"context"
	"sync"
	"time"
)

// Clock is a virtual-time core.Clock. Sleep advances the clock by the
// requested duration instead of blocking, so a single task's timing is
// fully deterministic and tests finish immediately. Elapsed time is
// observable through Now.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.mu.Lock()
		c.now += d
		c.mu.Unlock()
	}
	return nil
}

// Advance moves virtual time forward without a sleeper.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Pin is a recording core.OutputPin / core.InputPin.
type Pin struct {
	mu       sync.Mutex
	level    bool
	rising   int
	falling  int
}

func NewPin() *Pin { return &Pin{} }

func (p *Pin) Set(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if high && !p.level {
		p.rising++
	}
	if !high && p.level {
		p.falling++
	}
	p.level = high
}

func (p *Pin) High() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Pulses returns the number of completed low-high-low pulses.
func (p *Pin) Pulses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.falling
}

// PWM is a recording core.PWMOutput.
type PWM struct {
	mu     sync.Mutex
	max    uint32
	duty   uint32
	writes int
}

// NewPWM creates a PWM channel with the given maximum duty (0 means 255).
func NewPWM(max uint32) *PWM {
	if max == 0 {
		max = 255
	}
	return &PWM{max: max}
}

func (p *PWM) SetDutyCycle(value uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if value > p.max {
		value = p.max
	}
	p.duty = value
	p.writes++
	return nil
}

func (p *PWM) MaxDuty() uint32 { return p.max }

// Duty returns the last written duty value.
func (p *PWM) Duty() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// Writes returns how many times the duty was set.
func (p *PWM) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// ADC is a core.ADCSampler returning a programmable value. Source, when
// set, takes precedence and is consulted on every read.
type ADC struct {
	mu     sync.Mutex
	value  uint16
	err    error
	Source func() uint16
}

func NewADC(value uint16) *ADC { return &ADC{value: value} }

func (a *ADC) ReadRaw() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	if a.Source != nil {
		return a.Source(), nil
	}
	return a.value, nil
}

// SetValue changes the raw sample returned by ReadRaw.
func (a *ADC) SetValue(v uint16) {
	a.mu.Lock()
	a.value = v
	a.mu.Unlock()
}

// Fail makes subsequent reads return err (nil restores normal operation).
func (a *ADC) Fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// Endstop is a scriptable core.EndstopSource. Trigger may be armed
// immediately or after a number of Triggered polls, emulating a switch
// the carriage reaches partway through a homing run.
type Endstop struct {
	mu        sync.Mutex
	asserted  bool
	afterPoll int // assert after this many polls, if > 0
	polls     int
	wake      chan struct{}
}

func NewEndstop() *Endstop {
	return &Endstop{wake: make(chan struct{}, 1)}
}

func (e *Endstop) Triggered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polls++
	if e.afterPoll > 0 && e.polls >= e.afterPoll {
		e.assertLocked()
	}
	return e.asserted
}

func (e *Endstop) Wake() <-chan struct{} { return e.wake }

// Assert raises the endstop signal, as the interrupt handler would.
func (e *Endstop) Assert() {
	e.mu.Lock()
	e.assertLocked()
	e.mu.Unlock()
}

// Release lowers the endstop signal.
func (e *Endstop) Release() {
	e.mu.Lock()
	e.asserted = false
	e.polls = 0
	e.mu.Unlock()
}

// AssertAfter arms the endstop to assert after n Triggered polls.
func (e *Endstop) AssertAfter(n int) {
	e.mu.Lock()
	e.afterPoll = n
	e.polls = 0
	e.mu.Unlock()
}

func (e *Endstop) assertLocked() {
	if e.asserted {
		return
	}
	e.asserted = true
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
