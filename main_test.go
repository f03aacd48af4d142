package main

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/nf/ch8/chip8"
	"github.com/nf/ch8/vip"
)

var testProgram = []byte{
	0x60, 0x00, // LD V0, $00
	0xf0, 0x29, // LD F, V0
	0xd0, 0x05, // DRW V0, V0, $5
	0x12, 0x06, // JP $206
}

func writeProgram(t *testing.T, rom []byte) string {
	name := filepath.Join(t.TempDir(), "prog.ch8")
	assert.NoError(t, os.WriteFile(name, rom, 0o644))
	return name
}

func TestDisasm(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, disasm(&buf, writeProgram(t, testProgram)))
	want := "200  6000  LD V0, $00\n" +
		"202  f029  LD F, V0\n" +
		"204  d005  DRW V0, V0, $5\n" +
		"206  1206  JP $206\n"
	assert.Equal(t, want, buf.String())

	err := disasm(&buf, writeProgram(t, make([]byte, chip8.MemSize)))
	assert.True(t, errors.Is(err, chip8.ErrProgramTooLarge))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		cfg: vip.Config{
			Hz:     100000,
			Scale:  1,
			Cycles: 20,
			Log:    log.NewTestLogger(t),
		},
		screenshot: filepath.Join(dir, "screen.png"),
		wav:        filepath.Join(dir, "sound.wav"),
	}
	code, err := run(context.Background(), writeProgram(t, testProgram), opts)
	assert.NoError(t, err)
	assert.Equal(t, 0, code)

	f, err := os.Open(opts.screenshot)
	assert.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	assert.NoError(t, err)
	assert.Equal(t, chip8.Width, img.Bounds().Dx())

	_, err = os.Stat(opts.wav)
	assert.NoError(t, err)
}

func TestRunFault(t *testing.T) {
	opts := options{cfg: vip.Config{Log: log.NewTestLogger(t)}}
	code, err := run(context.Background(), writeProgram(t, []byte{0x00, 0xee}), opts)
	assert.NoError(t, err)
	assert.Equal(t, 1, code)

	_, err = run(context.Background(), filepath.Join(t.TempDir(), "missing.ch8"), opts)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStateMsg(t *testing.T) {
	m, err := chip8.NewMachine(testProgram)
	assert.NoError(t, err)
	m.V[0xa] = 0x42
	m.Stack[0] = 0x2f0
	m.SP = 1

	syms := symbols{{addr: 0x200, label: "main"}}
	s := stateMsg(syms, m, vip.BreakState)
	lines := strings.Split(s, "\n")
	assert.Equal(t, 4, len(lines))
	assert.True(t, strings.HasPrefix(lines[0], "200 LD V0, $00"))
	assert.True(t, strings.HasSuffix(lines[0], "[break] main"))
	assert.True(t, strings.Contains(lines[1], "VA:42"))
	assert.Equal(t, "I:000 DT:00 ST:00", lines[2])
	assert.Equal(t, "stack: [2f0]", lines[3])
}
