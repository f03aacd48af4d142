package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nf/ch8/chip8"
	"github.com/nf/ch8/vip"
)

type debugger struct {
	run *vip.Runner

	log   *tview.TextView
	watch *tview.TextView
	state *tview.TextView
	input *tview.InputField
	cols  *tview.Flex
	rows  *tview.Flex
	app   *tview.Application

	mu      sync.Mutex
	brk     *symbol
	syms    symbols
	watches []watch
}

type watch struct {
	symbol
	short bool
}

func (d *debugger) symbols() symbols {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syms
}

func (d *debugger) setSymbols(s symbols) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syms = s
}

func newDebugger() *debugger {
	d := &debugger{
		log: tview.NewTextView().
			SetDynamicColors(true).
			SetMaxLines(1000),
		watch: tview.NewTextView().
			SetWrap(false).
			SetTextAlign(tview.AlignRight),
		state: tview.NewTextView().
			SetWrap(false),
		input: tview.NewInputField(),
		cols:  tview.NewFlex(),
		rows: tview.NewFlex().
			SetDirection(tview.FlexRow),
		app: tview.NewApplication(),
	}
	d.log.SetChangedFunc(func() { d.app.Draw() })
	d.watch.SetBackgroundColor(tcell.ColorDarkBlue)
	d.state.SetBackgroundColor(tcell.ColorDarkGrey)
	d.cols.
		AddItem(d.watch, 0, 1, false).
		AddItem(d.log, 0, 2, false)
	d.rows.
		AddItem(d.cols, 0, 1, false).
		AddItem(d.state, 4, 0, false).
		AddItem(d.input, 1, 0, true)
	d.app.SetRoot(d.rows, true)

	d.input.SetAutocompleteFunc(func(t string) (entries []string) {
		if cmd, arg, ok := strings.Cut(t, " "); ok {
			switch cmd {
			case "b", "break", "w", "w2", "watch", "watch2":
				for _, s := range d.symbols().withLabelPrefix(arg) {
					entries = append(entries, cmd+" "+s.label)
				}
			}
		}
		return
	})
	d.input.SetAutocompletedFunc(func(t string, index, src int) bool {
		if src != tview.AutocompletedNavigate {
			d.input.SetText(t)
		}
		return src == tview.AutocompletedEnter || src == tview.AutocompletedClick
	})
	d.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		cmd := d.input.GetText()
		if cmd == "" {
			return
		}
		d.input.SetText("")
		d.command(cmd)
	})
	return d
}

func (d *debugger) command(cmd string) {
	if cmd == "exit" || cmd == "q" {
		d.app.Stop()
		return
	}
	if cmd, arg, ok := strings.Cut(cmd, " "); ok {
		switch cmd {
		case "b", "break":
			s, ok := d.symbols().resolve(arg)
			if !ok {
				d.printf("invalid address %q", arg)
				return
			}
			d.run.Debug(cmd, s.addr)
			d.mu.Lock()
			d.brk = &s
			d.mu.Unlock()
			d.printf("set break %s", s)
			return
		case "w", "w2", "watch", "watch2":
			s, ok := d.symbols().resolve(arg)
			if !ok {
				d.printf("invalid address %q", arg)
				return
			}
			d.mu.Lock()
			d.watches = append(d.watches,
				watch{symbol: s, short: strings.HasSuffix(cmd, "2")})
			d.mu.Unlock()
			d.printf("watching %s", s)
			return
		}
	}
	d.run.Debug(cmd, 0)
	if cmd == "b" || cmd == "break" {
		d.mu.Lock()
		d.brk = nil
		d.mu.Unlock()
		d.printf("cleared break")
	}
}

func (d *debugger) printf(format string, args ...any) {
	fmt.Fprintf(d.log, format+"\n", args...)
}

func (d *debugger) Run() error { return d.app.Run() }

// captureOutput sends everything written to os.Stdout and os.Stderr to the
// log pane, until restore is called.
func (d *debugger) captureOutput() (restore func(), err error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = w, w
	go io.Copy(tview.ANSIWriter(d.log), r)
	return func() {
		os.Stdout, os.Stderr = stdout, stderr
		w.Close()
	}, nil
}

func (d *debugger) StateFunc(m *chip8.Machine, k vip.StateKind) {
	var (
		watch = d.watchContent(m)
		state string
	)
	if k != vip.QuietState {
		state = stateMsg(d.symbols(), m, k)
	}
	d.app.QueueUpdateDraw(func() {
		switch k {
		case vip.ClearState:
			d.state.SetTextColor(tcell.ColorBlack)
			d.state.SetBackgroundColor(tcell.ColorDarkGrey)
		case vip.BreakState:
			d.state.SetTextColor(tcell.ColorYellow)
			d.state.SetBackgroundColor(tcell.ColorDarkBlue)
		case vip.PauseState:
			d.state.SetTextColor(tcell.ColorWhite)
			d.state.SetBackgroundColor(tcell.ColorDarkBlue)
		case vip.HaltState:
			d.state.SetTextColor(tcell.ColorWhite)
			d.state.SetBackgroundColor(tcell.ColorDarkRed)
		}
		d.watch.SetText(watch)
		if k != vip.QuietState {
			d.state.SetText(state)
		}
	})
}

func stateMsg(syms symbols, m *chip8.Machine, k vip.StateKind) string {
	var (
		op  = "----"
		sym string
	)
	hi, herr := m.Mem.Read(m.PC)
	lo, lerr := m.Mem.Read(m.PC + 1)
	if herr == nil && lerr == nil {
		op = chip8.Op(uint16(hi)<<8 | uint16(lo)).String()
	}
	if s := syms.forAddr(m.PC); len(s) > 0 {
		sym = s[0].label
	}
	kind := "       "
	switch k {
	case vip.BreakState:
		kind = "[break]"
	case vip.PauseState:
		kind = "[pause]"
	case vip.HaltState:
		kind = "[HALT!]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%.3x %-16s %s %s\n", m.PC, op, kind, sym)
	for i, v := range m.V {
		fmt.Fprintf(&b, "V%X:%.2x ", i, v)
	}
	fmt.Fprintf(&b, "\nI:%.3x DT:%.2x ST:%.2x\n", m.I, m.DT, m.ST)
	fmt.Fprintf(&b, "stack: %.3x", m.Stack[:m.SP])
	return b.String()
}

func (d *debugger) watchContent(m *chip8.Machine) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	if s := d.brk; s != nil {
		fmt.Fprintf(&b, "%s [%.3x] brk!\n", s.label, s.addr)
	}
	for _, w := range d.watches {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%.3x] ", w.label, w.addr)
		hi, err := m.Mem.Read(w.addr)
		if err != nil {
			b.WriteString("  --")
			continue
		}
		if w.short {
			lo, _ := m.Mem.Read(w.addr + 1)
			fmt.Fprintf(&b, "%.2x%.2x", hi, lo)
		} else {
			fmt.Fprintf(&b, "  %.2x", hi)
		}
	}
	return b.String()
}
