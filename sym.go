package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

type symbols []symbol

func (s symbols) forAddr(addr uint16) (ss []symbol) {
	i := sort.Search(len(s), func(i int) bool { return s[i].addr >= addr })
	for ; i < len(s); i++ {
		if s[i].addr == addr {
			ss = append(ss, s[i])
		}
	}
	return ss
}

func (s symbols) withLabelPrefix(p string) (ss []symbol) {
	for _, s := range s {
		if strings.HasPrefix(s.label, p) {
			ss = append(ss, s)
		}
	}
	return ss
}

// resolve finds the symbol with the given label, or else parses arg as a
// hexadecimal address.
func (s symbols) resolve(arg string) (symbol, bool) {
	for _, s := range s {
		if s.label == arg {
			return s, true
		}
	}
	addr, err := parseAddr(arg)
	if err != nil {
		return symbol{}, false
	}
	return symbol{addr: addr, label: fmt.Sprintf("$%.3x", addr)}, true
}

type symbol struct {
	addr  uint16
	label string
}

func (s symbol) String() string { return fmt.Sprintf("%s (%.3x)", s.label, s.addr) }

func parseAddr(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "0x"), "$")
	v, err := strconv.ParseUint(s, 16, 12)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

// parseSymbols reads a symbol file holding one "addr label" pair per line,
// with the address in hex. Blank lines and lines starting with # are
// ignored.
func parseSymbols(symFile string) (symbols, error) {
	f, err := os.Open(symFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		ss   symbols
		line int
		sc   = bufio.NewScanner(f)
	)
	for sc.Scan() {
		line++
		t := strings.TrimSpace(sc.Text())
		if t == "" || t[0] == '#' {
			continue
		}
		fields := strings.Fields(t)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: want address and label, got %q", symFile, line, t)
		}
		addr, err := parseAddr(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", symFile, line, err)
		}
		ss = append(ss, symbol{addr: addr, label: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(ss, func(i, j int) bool {
		return ss[i].addr < ss[j].addr
	})
	return ss, nil
}
