package chip8

import (
	"fmt"
	"io"
)

// Op represents a CHIP-8 instruction word.
type Op uint16

// Class returns the top nibble, which selects the instruction class.
func (o Op) Class() byte { return byte(o >> 12) }

// X returns the first register operand (bits 8-11).
func (o Op) X() byte { return byte(o>>8) & 0xf }

// Y returns the second register operand (bits 4-7).
func (o Op) Y() byte { return byte(o>>4) & 0xf }

// N returns the low nibble.
func (o Op) N() byte { return byte(o) & 0xf }

// NN returns the low byte.
func (o Op) NN() byte { return byte(o) }

// NNN returns the low 12 bits, usually an address.
func (o Op) NNN() uint16 { return uint16(o) & 0xfff }

// Known reports whether o is part of the instruction set.
func (o Op) Known() bool {
	switch o.Class() {
	case 0x0:
		switch o.NN() {
		case 0x00, 0xe0, 0xee:
			return true
		}
		return false
	case 0x8:
		switch o.N() {
		case 0x0, 0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0xe:
			return true
		}
		return false
	case 0xe:
		return false
	case 0xf:
		switch o.NN() {
		case 0x07, 0x15, 0x18, 0x1e, 0x29, 0x33, 0x55, 0x65:
			return true
		}
		return false
	}
	return true
}

var aluNames = [16]string{
	0x0: "LD",
	0x1: "OR",
	0x2: "AND",
	0x3: "XOR",
	0x4: "ADD",
	0x5: "SUB",
	0x6: "SHR",
	0x7: "SUBN",
	0xe: "SHL",
}

// String returns the instruction in assembler notation, for example
// "DRW V0, V1, $5". Unknown instructions are shown as data words.
func (o Op) String() string {
	if !o.Known() {
		return fmt.Sprintf("DW $%.4X", uint16(o))
	}
	x, y := o.X(), o.Y()
	switch o.Class() {
	case 0x0:
		switch o.NN() {
		case 0xe0:
			return "CLS"
		case 0xee:
			return "RET"
		}
		return "NOP"
	case 0x1:
		return fmt.Sprintf("JP $%.3X", o.NNN())
	case 0x2:
		return fmt.Sprintf("CALL $%.3X", o.NNN())
	case 0x3:
		return fmt.Sprintf("SE V%X, $%.2X", x, o.NN())
	case 0x4:
		return fmt.Sprintf("SNE V%X, $%.2X", x, o.NN())
	case 0x5:
		return fmt.Sprintf("SE V%X, V%X", x, y)
	case 0x6:
		return fmt.Sprintf("LD V%X, $%.2X", x, o.NN())
	case 0x7:
		return fmt.Sprintf("ADD V%X, $%.2X", x, o.NN())
	case 0x8:
		switch n := o.N(); n {
		case 0x6, 0xe:
			return fmt.Sprintf("%s V%X", aluNames[n], x)
		default:
			return fmt.Sprintf("%s V%X, V%X", aluNames[n], x, y)
		}
	case 0x9:
		return fmt.Sprintf("SNE V%X, V%X", x, y)
	case 0xa:
		return fmt.Sprintf("LD I, $%.3X", o.NNN())
	case 0xb:
		return fmt.Sprintf("JP V0, $%.3X", o.NNN())
	case 0xc:
		return fmt.Sprintf("RND V%X, $%.2X", x, o.NN())
	case 0xd:
		return fmt.Sprintf("DRW V%X, V%X, $%X", x, y, o.N())
	}
	switch o.NN() {
	case 0x07:
		return fmt.Sprintf("LD V%X, DT", x)
	case 0x15:
		return fmt.Sprintf("LD DT, V%X", x)
	case 0x18:
		return fmt.Sprintf("LD ST, V%X", x)
	case 0x1e:
		return fmt.Sprintf("ADD I, V%X", x)
	case 0x29:
		return fmt.Sprintf("LD F, V%X", x)
	case 0x33:
		return fmt.Sprintf("LD B, V%X", x)
	case 0x55:
		return fmt.Sprintf("LD [I], V%X", x)
	default: // 0x65
		return fmt.Sprintf("LD V%X, [I]", x)
	}
}

// Disassemble writes a listing of mem, which is assumed to be loaded at
// start, one instruction word per line. A trailing odd byte is shown as a
// data byte.
func Disassemble(w io.Writer, mem []byte, start uint16) error {
	for i := 0; i < len(mem); i += 2 {
		addr := start + uint16(i)
		if i+1 == len(mem) {
			_, err := fmt.Fprintf(w, "%.3x  %.2x    DB $%.2X\n", addr, mem[i], mem[i])
			return err
		}
		op := Op(short(mem[i], mem[i+1]))
		if _, err := fmt.Fprintf(w, "%.3x  %.4x  %v\n", addr, uint16(op), op); err != nil {
			return err
		}
	}
	return nil
}

func short(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
