//go:build rp2040

package main

import (
	"sync"
	"time"

	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Step pulse generation on a PIO state machine. Each FIFO word describes
// one pulse:
//
//	bits 0-15:  extra pulses (0 = single pulse)
//	bits 16-31: inter-pulse delay in PIO ticks
//
// The program pulls a word, raises the step pin for 8 cycles, then burns
// the delay before pulling the next. The divider puts the PIO at 1 MHz,
// so a tick is a microsecond.
func buildStepProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(), // 1: out x, 16 (extra pulses)
		asm.Out(rp2pio.OutDestY, 16).Encode(), // 2: out y, 16 (delay ticks)
		// pulse:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 3: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 4: set pins, 0
		// delay:
		asm.Jmp(5, rp2pio.JmpYNZeroDec).Encode(), // 5: jmp y--, 5
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(), // 6: jmp x--, 3
		// .wrap
	}
}

const (
	stepProgramOrigin = 0 // jumps are absolute, load at offset 0

	pioTickHz = 1_000_000

	// maxDelayTicks is the widest spacing the 16-bit delay counter can
	// time; slower trains are paced from the CPU instead.
	maxDelayTicks = 0xFFFF

	// overheadTicks is the fixed per-word cost (pull, shifts, pulse) at
	// the 1 MHz tick, subtracted from the programmed delay.
	overheadTicks = 13
)

// pulseEmitter is the hardware fast path for an axis step pin.
type pulseEmitter struct {
	pio *rp2pio.PIO
	sm  rp2pio.StateMachine
	pin machine.Pin
}

var (
	loadProgramOnce sync.Once
	programOffset   uint8
	programLen      uint8
	programLoadErr  error
)

// newPulseEmitter claims one PIO0 state machine for the step pin. One
// copy of the program serves all four axes; it is loaded on first claim.
func newPulseEmitter(smNum uint8, pin machine.Pin) (*pulseEmitter, error) {
	e := &pulseEmitter{
		pio: rp2pio.PIO0,
		sm:  rp2pio.PIO0.StateMachine(smNum),
		pin: pin,
	}
	e.sm.TryClaim()

	loadProgramOnce.Do(func() {
		program := buildStepProgram()
		programOffset, programLoadErr = e.pio.AddProgram(program, stepProgramOrigin)
		programLen = uint8(len(program))
	})
	if programLoadErr != nil {
		return nil, programLoadErr
	}
	offset := programOffset

	e.pin.Configure(machine.PinConfig{Mode: e.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(e.pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+programLen-1, offset)
	cfg.SetClkDivIntFrac(125, 0) // 125 MHz sysclk -> 1 MHz tick

	e.sm.Init(offset, cfg)
	e.sm.SetPindirsConsecutive(e.pin, 1, true)
	e.sm.SetPinsConsecutive(e.pin, 1, false)
	e.sm.SetEnabled(true)
	return e, nil
}

func (e *pulseEmitter) TickHz() uint32 {
	return pioTickHz
}

// EmitPulses pushes one word per pulse so every gap is hardware-timed.
// Blocks until the train has drained out of the state machine.
func (e *pulseEmitter) EmitPulses(count, intervalTicks uint32) error {
	if count == 0 {
		return nil
	}

	delay := uint32(0)
	if intervalTicks > overheadTicks {
		delay = intervalTicks - overheadTicks
	}

	if delay > maxDelayTicks {
		// Too slow for the 16-bit counter: pace from the CPU. Jitter at
		// these intervals is far below a step period.
		gap := time.Duration(intervalTicks) * time.Microsecond
		for i := uint32(0); i < count; i++ {
			e.put(0)
			time.Sleep(gap)
		}
		return e.drain(0)
	}

	word := delay << 16
	for i := uint32(0); i < count; i++ {
		e.put(word)
	}
	return e.drain(delay)
}

func (e *pulseEmitter) put(word uint32) {
	for e.sm.IsTxFIFOFull() {
	}
	e.sm.TxPut(word)
}

// drain waits for the FIFO to empty plus one word's worth of time for
// the pulse still in flight.
func (e *pulseEmitter) drain(delay uint32) error {
	for !e.sm.IsTxFIFOEmpty() {
	}
	time.Sleep(time.Duration(delay+overheadTicks) * time.Microsecond)
	return nil
}

// Halt stops the state machine and clears anything queued, then restarts
// it idle so the next train can start cleanly.
func (e *pulseEmitter) Halt() {
	e.sm.SetEnabled(false)
	e.sm.ClearFIFOs()
	e.sm.Restart()
	e.sm.SetEnabled(true)
}
