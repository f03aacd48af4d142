package chip8

import (
	"errors"
	"fmt"
)

const (
	// MemSize is the size of the CHIP-8 address space.
	MemSize = 0x1000

	// ProgramStart is the address at which programs are loaded and
	// execution begins.
	ProgramStart = 0x200
)

// ErrProgramTooLarge is returned by LoadProgram if the program does not fit
// between ProgramStart and the end of memory.
var ErrProgramTooLarge = errors.New("program too large")

// Memory is the 4K byte-addressable store shared by the font table, the
// loaded program and the running program's data.
type Memory [MemSize]byte

// AddressError reports an access outside of Memory.
type AddressError struct {
	Addr  uint16
	Write bool
}

func (e *AddressError) Error() string {
	kind := "read"
	if e.Write {
		kind = "write"
	}
	return fmt.Sprintf("%s at %.4x outside of memory", kind, e.Addr)
}

// Read returns the byte at addr.
func (m *Memory) Read(addr uint16) (byte, error) {
	if int(addr) >= len(m) {
		return 0, &AddressError{Addr: addr}
	}
	return m[addr], nil
}

// Write stores v at addr.
func (m *Memory) Write(addr uint16, v byte) error {
	if int(addr) >= len(m) {
		return &AddressError{Addr: addr, Write: true}
	}
	m[addr] = v
	return nil
}

// LoadProgram copies rom into memory starting at ProgramStart.
// Memory is left untouched if rom does not fit.
func (m *Memory) LoadProgram(rom []byte) error {
	if n := ProgramStart + len(rom); n > len(m) {
		return fmt.Errorf("%w: %d bytes, room for %d", ErrProgramTooLarge, len(rom), len(m)-ProgramStart)
	}
	for i, b := range rom {
		if err := m.Write(uint16(ProgramStart+i), b); err != nil {
			return err
		}
	}
	return nil
}

// Reset zero-fills memory.
func (m *Memory) Reset() {
	*m = Memory{}
}

// inRange reports whether n bytes starting at addr lie inside memory.
func (m *Memory) inRange(addr uint16, n int) bool {
	return int(addr)+n <= len(m)
}
