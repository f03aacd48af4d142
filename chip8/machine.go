// Package chip8 provides an implementation of the CHIP-8 virtual machine,
// called Machine, that can be used to execute CHIP-8 programs.
package chip8

import (
	"fmt"
	"math/rand"

	"github.com/retroenv/retrogolib/log"
)

// StackSize is the number of return addresses the call stack can hold.
const StackSize = 16

// Machine is an implementation of the CHIP-8 interpreter core.
//
// V[0xf] doubles as the flag register: the arithmetic, shift and draw
// instructions overwrite it with their carry, borrow or collision result.
type Machine struct {
	Mem   Memory
	PC    uint16
	I     uint16
	V     [16]byte
	Stack [StackSize]uint16
	SP    byte // next free slot in Stack
	DT    byte // delay timer
	ST    byte // sound timer
	Gfx   Display

	// Rand supplies the random bytes used by RND.
	// If nil, math/rand is used.
	Rand func() byte

	// If Trace is set and Log is non-nil, each executed instruction is
	// logged at debug level.
	Log   *log.Logger
	Trace bool

	rom []byte
}

// NewMachine returns a CHIP-8 machine with the font loaded at address 0
// and rom loaded at ProgramStart.
func NewMachine(rom []byte) (*Machine, error) {
	m := &Machine{}
	if err := m.Mem.LoadProgram(rom); err != nil {
		return nil, err
	}
	m.rom = rom
	m.Reset()
	return m, nil
}

// Reset returns the machine to its power-on state, with the font and the
// program it was created with loaded into otherwise cleared memory.
func (m *Machine) Reset() {
	m.Mem.Reset()
	m.Mem.loadFont()
	copy(m.Mem[ProgramStart:], m.rom)
	m.PC = ProgramStart
	m.I = 0
	m.V = [16]byte{}
	m.Stack = [StackSize]uint16{}
	m.SP = 0
	m.DT, m.ST = 0, 0
	m.Gfx.Clear()
}

// Events reports what happened to the display during a Step.
type Events byte

const (
	DrawEvent  Events = 1 << iota // a sprite was drawn
	ClearEvent                    // the display was cleared
)

func (e Events) Draw() bool  { return e&DrawEvent != 0 }
func (e Events) Clear() bool { return e&ClearEvent != 0 }

// Step fetches, decodes and executes the instruction at m.PC.
//
// An unknown instruction is skipped and reported as a Fault with the
// UnknownOp code. Any other Fault is fatal to the running program: the
// machine state is left exactly as it was before the Step.
func (m *Machine) Step() (ev Events, err error) {
	var (
		pc = m.PC
		op Op
	)
	defer func() {
		if e := recover(); e != nil {
			if code, ok := e.(FaultCode); ok {
				ev = 0
				err = Fault{
					FaultCode: code,
					Op:        op,
					Addr:      pc,
				}
			} else {
				panic(e)
			}
		}
	}()

	m.need(pc, 2)
	op = Op(short(m.Mem[pc], m.Mem[pc+1]))
	if m.Trace && m.Log != nil {
		m.Log.Debug("exec", log.String("pc", fmt.Sprintf("%.3x", pc)), log.String("op", op.String()))
	}
	return m.exec(op)
}

func (m *Machine) exec(op Op) (ev Events, err error) {
	var (
		x, y = op.X(), op.Y()
		next = m.PC + 2
	)

	switch op.Class() {
	case 0x0:
		switch op.NN() {
		case 0x00:
		case 0xe0:
			m.Gfx.Clear()
			ev |= ClearEvent
		case 0xee:
			if m.SP == 0 {
				panic(StackUnderflow)
			}
			m.SP--
			next = m.Stack[m.SP] + 2
		default:
			err = Fault{FaultCode: UnknownOp, Op: op, Addr: m.PC}
		}
	case 0x1:
		next = op.NNN()
	case 0x2:
		if int(m.SP) >= len(m.Stack) {
			panic(StackOverflow)
		}
		m.Stack[m.SP] = m.PC
		m.SP++
		next = op.NNN()
	case 0x3:
		if m.V[x] == op.NN() {
			next += 2
		}
	case 0x4:
		if m.V[x] != op.NN() {
			next += 2
		}
	case 0x5:
		if m.V[x] == m.V[y] {
			next += 2
		}
	case 0x6:
		m.V[x] = op.NN()
	case 0x7:
		m.V[x] += op.NN()
	case 0x8:
		vx, vy := m.V[x], m.V[y]
		switch op.N() {
		case 0x0:
			m.V[x] = vy
		case 0x1:
			m.V[x] = vx | vy
		case 0x2:
			m.V[x] = vx & vy
		case 0x3:
			m.V[x] = vx ^ vy
		case 0x4:
			sum := uint16(vx) + uint16(vy)
			m.V[x] = byte(sum)
			m.V[0xf] = flag(sum > 0xff)
		case 0x5:
			m.V[x] = vx - vy
			m.V[0xf] = flag(vx >= vy)
		case 0x6:
			m.V[x] = vx >> 1
			m.V[0xf] = vx & 1
		case 0x7:
			m.V[x] = vy - vx
			m.V[0xf] = flag(vy >= vx)
		case 0xe:
			m.V[x] = vx << 1
			m.V[0xf] = (vx & 0x80) >> 7
		default:
			err = Fault{FaultCode: UnknownOp, Op: op, Addr: m.PC}
		}
	case 0x9:
		if m.V[x] != m.V[y] {
			next += 2
		}
	case 0xa:
		m.I = op.NNN()
	case 0xb:
		next = op.NNN() + uint16(m.V[0])
	case 0xc:
		m.V[x] = m.random() & op.NN()
	case 0xd:
		m.draw(int(m.V[x]), int(m.V[y]), int(op.N()))
		ev |= DrawEvent
	case 0xf:
		switch op.NN() {
		case 0x07:
			m.V[x] = m.DT
		case 0x15:
			m.DT = m.V[x]
		case 0x18:
			m.ST = m.V[x]
		case 0x1e:
			m.I += uint16(m.V[x])
		case 0x29:
			m.I = FontAddr(m.V[x])
		case 0x33:
			m.need(m.I, 3)
			v := m.V[x]
			m.Mem[m.I] = v / 100
			m.Mem[m.I+1] = v / 10 % 10
			m.Mem[m.I+2] = v % 10
		case 0x55:
			m.need(m.I, int(x)+1)
			copy(m.Mem[m.I:], m.V[:x+1])
		case 0x65:
			m.need(m.I, int(x)+1)
			copy(m.V[:x+1], m.Mem[m.I:])
		default:
			err = Fault{FaultCode: UnknownOp, Op: op, Addr: m.PC}
		}
	default:
		err = Fault{FaultCode: UnknownOp, Op: op, Addr: m.PC}
	}

	m.PC = next
	return ev, err
}

// draw XORs the n-row sprite at I onto the display with its top-left
// corner at x, y, wrapping around both edges. V[0xf] is set to 1 if any lit
// pixel was turned off and 0 otherwise.
func (m *Machine) draw(x, y, n int) {
	m.need(m.I, n)
	m.V[0xf] = 0
	for row := 0; row < n; row++ {
		sprite := m.Mem[m.I+uint16(row)]
		for col := 0; col < 8; col++ {
			if sprite&(0x80>>col) == 0 {
				continue
			}
			if m.Gfx.flip(x+col, y+row) {
				m.V[0xf] = 1
			}
		}
	}
}

// Tick decrements the delay and sound timers, stopping at zero.
// It reports whether the sound timer expired on this tick.
func (m *Machine) Tick() (sound bool) {
	if m.DT > 0 {
		m.DT--
	}
	if m.ST > 0 {
		m.ST--
		sound = m.ST == 0
	}
	return sound
}

// Sounding reports whether the sound timer is running.
func (m *Machine) Sounding() bool { return m.ST > 0 }

// need raises BadAddress unless n bytes from addr are inside memory.
func (m *Machine) need(addr uint16, n int) {
	if !m.Mem.inRange(addr, n) {
		panic(BadAddress)
	}
}

func (m *Machine) random() byte {
	if m.Rand != nil {
		return m.Rand()
	}
	return byte(rand.Intn(0x100))
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Fault is returned by Step when an instruction cannot be executed
// normally.
type Fault struct {
	FaultCode
	Op   Op
	Addr uint16
}

func (e Fault) Error() string {
	return fmt.Sprintf("%s executing %s at %.4x", e.FaultCode, e.Op, e.Addr)
}

// FaultCode signifies the kind of condition reported by a Fault.
type FaultCode byte

const (
	UnknownOp      FaultCode = 0x01
	StackOverflow  FaultCode = 0x02
	StackUnderflow FaultCode = 0x03
	BadAddress     FaultCode = 0x04
)

// Fatal reports whether the program cannot continue after the fault.
func (c FaultCode) Fatal() bool { return c != UnknownOp }

func (c FaultCode) String() string {
	if s, ok := map[FaultCode]string{
		UnknownOp:      "unknown instruction",
		StackOverflow:  "stack overflow",
		StackUnderflow: "stack underflow",
		BadAddress:     "address out of range",
	}[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%.2x)", byte(c))
}
