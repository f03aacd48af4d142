// Package vip implements a host for the CHIP-8 interpreter, in the manner
// of the COSMAC VIP it was first written for: it paces the instruction
// clock and the 60 Hz timers, presents the display and drives the buzzer.
package vip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/log"

	"github.com/nf/ch8/chip8"
)

// TimerHz is the rate at which the delay and sound timers count down.
const TimerHz = 60

// Config holds the settings for a Runner and the VIPs it runs.
type Config struct {
	GUI    bool // present the display in a window
	Dev    bool // keep running after a halt, waiting for Swap
	Hz     int  // instruction clock; DefaultHz if zero
	Scale  int  // window pixels per display pixel; DefaultScale if zero
	Cycles int  // stop after this many instructions; zero runs forever
	Trace  bool // log every executed instruction

	Log    *log.Logger
	Buzzer Buzzer // may be nil
}

const (
	DefaultHz    = 700
	DefaultScale = 10
)

func (c Config) hz() int {
	if c.Hz <= 0 {
		return DefaultHz
	}
	return c.Hz
}

func (c Config) logger() *log.Logger {
	if c.Log == nil {
		return log.NewWithConfig(log.DefaultConfig())
	}
	return c.Log
}

func (c Config) scale() int {
	if c.Scale <= 0 {
		return DefaultScale
	}
	return c.Scale
}

// StateKind tells a StateFunc why it is being called.
type StateKind int

const (
	ClearState StateKind = iota // execution resumed
	QuietState                  // periodic refresh while running
	BreakState                  // stopped at a breakpoint
	PauseState                  // paused or single-stepped
	HaltState                   // halted by a fatal fault
)

// StateFunc is called from the execution goroutine, where it may safely
// inspect the machine.
type StateFunc func(m *chip8.Machine, k StateKind)

type Runner struct {
	cfg Config
	dbg *debugState

	reset     chan *VIP
	resetDone chan bool
}

// NewRunner returns a Runner using the given configuration. If stateFunc is
// non-nil the Runner accepts debugger commands through Debug.
func NewRunner(cfg Config, stateFunc StateFunc) *Runner {
	cfg.Log = cfg.logger()
	r := &Runner{
		cfg:       cfg,
		reset:     make(chan *VIP),
		resetDone: make(chan bool),
	}
	if stateFunc != nil {
		r.dbg = &debugState{
			cmds:   make(chan debugCmd, 8),
			breaks: make(map[uint16]struct{}),
			state:  stateFunc,
		}
	}
	return r
}

// Swap replaces the running VIP with v. It may only be used in dev mode.
func (r *Runner) Swap(v *VIP) {
	if !r.cfg.Dev {
		panic("Swap called while not running in dev mode")
	}
	r.reset <- v
	<-r.resetDone
}

// Debug sends a debugger command to the running VIP.
// An addr of zero clears the breakpoints.
// The command is dropped if the VIP is not accepting commands.
func (r *Runner) Debug(cmd string, addr uint16) {
	if r.dbg == nil {
		return
	}
	select {
	case r.dbg.cmds <- debugCmd{cmd: cmd, addr: addr}:
	default:
		r.cfg.Log.Warn("Debugger command dropped", log.String("cmd", cmd))
	}
}

// Run executes v until it halts, the configured number of cycles has been
// executed, the GUI window is closed, or ctx is cancelled. It returns 1 if
// the program was halted by a fatal fault and 0 otherwise.
func (r *Runner) Run(ctx context.Context, v *VIP) (exitCode int) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		g    = newGUI(v, r.cfg.scale())
		exit = make(chan bool)
	)
	go func() {
		var (
			execErr = make(chan error)
			running = true
		)
		go func() { execErr <- v.Exec(ctx, r.dbg) }()
		for {
			select {
			case newV := <-r.reset:
				if running {
					v.Halt()
					<-execErr
				}
				v = newV
				g.swap(v)
				running = true
				go func() { execErr <- v.Exec(ctx, r.dbg) }()
				r.resetDone <- true
			case err := <-execErr:
				running = false
				var f chip8.Fault
				if errors.As(err, &f) {
					exitCode = 1
				} else {
					exitCode = 0
				}
				if !r.cfg.Dev || ctx.Err() != nil {
					close(exit)
					return
				}
			case <-ctx.Done():
				if !running {
					close(exit)
					return
				}
			}
		}
	}()
	if r.cfg.GUI {
		// If the GUI is enabled then Run will drive the GUI until
		// exit is closed or the window goes away.
		if err := g.Run(exit); err != nil {
			r.cfg.Log.Error("GUI failed", err)
		}
		cancel()
	}
	<-exit
	return exitCode
}

// VIP is one running CHIP-8 program and the peripherals attached to it.
type VIP struct {
	m    *chip8.Machine
	cfg  Config
	log  *log.Logger
	buzz Buzzer

	trace  backlog
	cycles int
	dirty  bool // display changed since the GUI last looked

	guiUpdate     chan bool
	guiUpdateDone chan bool

	halt     chan bool
	haltOnce sync.Once
}

// New returns a VIP running rom.
func New(rom []byte, cfg Config) (*VIP, error) {
	m, err := chip8.NewMachine(rom)
	if err != nil {
		return nil, err
	}
	cfg.Log = cfg.logger()
	m.Log = cfg.Log
	m.Trace = cfg.Trace
	return &VIP{
		m:             m,
		cfg:           cfg,
		log:           cfg.Log,
		buzz:          cfg.Buzzer,
		dirty:         true,
		guiUpdate:     make(chan bool),
		guiUpdateDone: make(chan bool),
		halt:          make(chan bool),
	}, nil
}

// Machine returns the interpreter run by v. It is only safe to use while
// v is not executing.
func (v *VIP) Machine() *chip8.Machine { return v.m }

// Cycles returns the number of instructions executed so far.
func (v *VIP) Cycles() int { return v.cycles }

// Halt stops a running Exec.
func (v *VIP) Halt() {
	v.haltOnce.Do(func() { close(v.halt) })
}

// Exec runs the program, stepping the instruction clock and the timers on
// independent tickers, until it is halted, faults fatally, completes the
// configured number of cycles, or ctx is done. A fatal fault is returned
// as a chip8.Fault.
func (v *VIP) Exec(ctx context.Context, d *debugState) error {
	interval, batch := clockRate(v.cfg.hz())
	clock := time.NewTicker(interval)
	defer clock.Stop()
	timers := time.NewTicker(time.Second / TimerHz)
	defer timers.Stop()

	v.log.Info("Running program", log.Int("hz", v.cfg.hz()))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.halt:
			return nil
		case <-clock.C:
			for i := 0; i < batch; i++ {
				if err := v.cycle(d); err != nil {
					d.notify(v.m, HaltState)
					return err
				}
				if v.done() {
					v.log.Info("Cycle limit reached", log.Int("cycles", v.cycles))
					return nil
				}
			}
		case <-timers.C:
			if !d.holdsTimers() {
				v.tick()
			}
			d.notify(v.m, QuietState)
		case c := <-d.commands():
			if err := v.debug(d, c); err != nil {
				d.notify(v.m, HaltState)
				return err
			}
		case v.guiUpdate <- true:
			<-v.guiUpdateDone
		}
	}
}

func (v *VIP) done() bool {
	return v.cfg.Cycles > 0 && v.cycles >= v.cfg.Cycles
}

// cycle executes one instruction, unless the debugger holds execution.
// It returns an error only for a fatal fault.
func (v *VIP) cycle(d *debugState) error {
	if d.hold(v.m) {
		return nil
	}
	if op, ok := fetch(v.m, v.m.PC); ok {
		v.trace.record(v.m.PC, op)
	}

	ev, err := v.m.Step()
	if ev.Draw() || ev.Clear() {
		v.dirty = true
	}
	var f chip8.Fault
	if errors.As(err, &f) {
		if !f.Fatal() {
			v.log.Warn("Skipping instruction",
				log.String("pc", fmt.Sprintf("%.3x", f.Addr)),
				log.String("op", fmt.Sprintf("%.4x", uint16(f.Op))),
				log.String("reason", f.FaultCode.String()))
		} else {
			v.log.Error("Program halted", err)
			v.trace.emit(v.log)
			return err
		}
	}
	v.cycles++
	return nil
}

// tick advances the timers by one 1/60 s frame and feeds the buzzer.
func (v *VIP) tick() {
	on := v.m.Sounding()
	if v.m.Tick() {
		v.log.Debug("Sound timer expired")
	}
	if v.buzz != nil {
		v.buzz.Sound(on)
	}
}

// fetch returns the instruction word at pc, or false if it does not lie
// entirely inside memory.
func fetch(m *chip8.Machine, pc uint16) (chip8.Op, bool) {
	hi, err := m.Mem.Read(pc)
	if err != nil {
		return 0, false
	}
	lo, err := m.Mem.Read(pc + 1)
	if err != nil {
		return 0, false
	}
	return chip8.Op(uint16(hi)<<8 | uint16(lo)), true
}

// clockRate returns the ticker interval and the number of instructions to
// run per tick for an instruction clock of hz. Tickers faster than 1 kHz
// are avoided by running several instructions per tick.
func clockRate(hz int) (time.Duration, int) {
	if hz <= 0 {
		hz = DefaultHz
	}
	batch := 1
	if hz > 1000 {
		batch = (hz + 999) / 1000
	}
	return time.Second * time.Duration(batch) / time.Duration(hz), batch
}

type debugCmd struct {
	cmd  string
	addr uint16
}

// debugState is owned by the Runner so that breakpoints survive a Swap,
// but it is only used from the goroutine executing the current VIP.
type debugState struct {
	cmds   chan debugCmd
	breaks map[uint16]struct{}
	paused bool
	resume bool // ignore a breakpoint at PC for one cycle
	state  StateFunc
}

func (d *debugState) commands() <-chan debugCmd {
	if d == nil {
		return nil
	}
	return d.cmds
}

func (d *debugState) notify(m *chip8.Machine, k StateKind) {
	if d != nil {
		d.state(m, k)
	}
}

// hold reports whether execution should not proceed at m.PC, stopping at a
// breakpoint if there is one.
func (d *debugState) hold(m *chip8.Machine) bool {
	if d == nil {
		return false
	}
	if d.paused {
		return true
	}
	if d.resume {
		d.resume = false
		return false
	}
	if _, ok := d.breaks[m.PC]; ok {
		d.paused = true
		d.notify(m, BreakState)
		return true
	}
	return false
}

// holdsTimers reports whether the delay and sound timers are frozen
// because execution is paused.
func (d *debugState) holdsTimers() bool {
	return d != nil && d.paused
}

func (v *VIP) debug(d *debugState, c debugCmd) error {
	switch c.cmd {
	case "b", "break":
		if c.addr == 0 {
			for a := range d.breaks {
				delete(d.breaks, a)
			}
		} else {
			d.breaks[c.addr] = struct{}{}
		}
	case "p", "pause":
		d.paused = true
		d.notify(v.m, PauseState)
	case "c", "cont", "continue":
		d.paused = false
		d.resume = true
		d.notify(v.m, ClearState)
	case "s", "step":
		d.paused = false
		d.resume = true
		err := v.cycle(d)
		d.paused = true
		if err != nil {
			return err
		}
		d.notify(v.m, PauseState)
	case "r", "reset":
		v.m.Reset()
		v.dirty = true
		v.trace.reset()
		d.notify(v.m, ClearState)
	default:
		v.log.Warn("Unknown debugger command", log.String("cmd", c.cmd))
	}
	return nil
}

// backlog keeps the most recently executed instructions so that they can
// be logged when the program halts.
type backlog struct {
	entries []traceEntry
	n       int
}

type traceEntry struct {
	pc uint16
	op chip8.Op
}

const maxBacklog = 32

func (b *backlog) record(pc uint16, op chip8.Op) {
	if b.n < len(b.entries) {
		b.entries[b.n] = traceEntry{pc, op}
	} else {
		b.entries = append(b.entries, traceEntry{pc, op})
	}
	b.n = (b.n + 1) % maxBacklog
}

// recent returns the recorded instructions, oldest first.
func (b *backlog) recent() []traceEntry {
	if len(b.entries) < maxBacklog {
		return b.entries
	}
	return append(append([]traceEntry{}, b.entries[b.n:]...), b.entries[:b.n]...)
}

func (b *backlog) emit(l *log.Logger) {
	for _, e := range b.recent() {
		l.Info("Backlog", log.String("pc", fmt.Sprintf("%.3x", e.pc)), log.String("op", e.op.String()))
	}
}

func (b *backlog) reset() {
	b.entries = b.entries[:0]
	b.n = 0
}
