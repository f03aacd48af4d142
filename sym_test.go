package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestParseSymbols(t *testing.T) {
	name := filepath.Join(t.TempDir(), "prog.ch8.sym")
	err := os.WriteFile(name, []byte(`# labels
0x20a loop
$200 main

200 start
`), 0o644)
	assert.NoError(t, err)

	syms, err := parseSymbols(name)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(syms))
	assert.Equal(t, "main", syms[0].label)
	assert.Equal(t, "start", syms[1].label)
	assert.Equal(t, uint16(0x20a), syms[2].addr)

	ss := syms.forAddr(0x200)
	assert.Equal(t, 2, len(ss))
	assert.Equal(t, 0, len(syms.forAddr(0x202)))
	assert.Equal(t, 3, len(syms.withLabelPrefix("")))
	assert.Equal(t, 1, len(syms.withLabelPrefix("lo")))
}

func TestParseSymbolsError(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bad.sym")
	assert.NoError(t, os.WriteFile(name, []byte("200\n"), 0o644))
	_, err := parseSymbols(name)
	assert.Error(t, err, name+`:1: want address and label, got "200"`)

	assert.NoError(t, os.WriteFile(name, []byte("zz main\n"), 0o644))
	_, err = parseSymbols(name)
	assert.Error(t, err, name+`:1: invalid address "zz"`)

	_, err = parseSymbols(filepath.Join(t.TempDir(), "missing.sym"))
	assert.True(t, os.IsNotExist(err))
}

func TestResolve(t *testing.T) {
	syms := symbols{{addr: 0x200, label: "main"}}

	s, ok := syms.resolve("main")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x200), s.addr)

	s, ok = syms.resolve("2a4")
	assert.True(t, ok)
	assert.Equal(t, uint16(0x2a4), s.addr)

	s, ok = syms.resolve("$FFF")
	assert.True(t, ok)
	assert.Equal(t, uint16(0xfff), s.addr)

	_, ok = syms.resolve("1000")
	assert.False(t, ok)
	_, ok = syms.resolve("nowhere")
	assert.False(t, ok)
}
