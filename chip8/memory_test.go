package chip8

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestMemoryReadWrite(t *testing.T) {
	var m Memory
	assert.NoError(t, m.Write(0x000, 0x12))
	assert.NoError(t, m.Write(0xfff, 0x34))

	b, err := m.Read(0x000)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x12), b)
	b, err = m.Read(0xfff)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x34), b)

	_, err = m.Read(0x1000)
	var ae *AddressError
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, uint16(0x1000), ae.Addr)
	assert.False(t, ae.Write)

	err = m.Write(0xffff, 1)
	assert.True(t, errors.As(err, &ae))
	assert.True(t, ae.Write)
}

func TestLoadProgram(t *testing.T) {
	for _, c := range []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, false},
		{"one", 1, false},
		{"full", MemSize - ProgramStart, false},
		{"too large", MemSize - ProgramStart + 1, true},
	} {
		t.Run(c.name, func(t *testing.T) {
			var m Memory
			rom := make([]byte, c.size)
			for i := range rom {
				rom[i] = 1
			}
			err := m.LoadProgram(rom)
			if c.wantErr {
				assert.True(t, errors.Is(err, ErrProgramTooLarge))
				if m != (Memory{}) {
					t.Error("memory modified by failed load")
				}
				return
			}
			assert.NoError(t, err)
			for i := range m {
				w := byte(0)
				if i >= ProgramStart && i < ProgramStart+c.size {
					w = 1
				}
				if g := m[i]; g != w {
					t.Fatalf("Mem[%.4x] == %.2x, want %.2x", i, g, w)
				}
			}
		})
	}
}

func TestFontAddr(t *testing.T) {
	for d := 0; d < 0x100; d++ {
		want := uint16(d&0xf) * 5
		assert.Equal(t, want, FontAddr(byte(d)))
	}
}
