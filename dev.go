package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/howeyc/fsnotify"
	"github.com/retroenv/retrogolib/log"

	"github.com/nf/ch8/vip"
)

// devMode runs romFile, starting it again from scratch whenever the file
// changes. If debug is set the debugger takes over the terminal.
func devMode(ctx context.Context, cfg vip.Config, debug, quiet bool, romFile string) (int, error) {
	romFile = filepath.Clean(romFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, err
	}
	defer watcher.Close()
	if err := watcher.Watch(filepath.Dir(romFile)); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		d         *debugger
		stateFunc vip.StateFunc
	)
	if debug {
		d = newDebugger()
		stateFunc = d.StateFunc
		restore, err := d.captureOutput()
		if err != nil {
			return 0, err
		}
		defer restore()
	}

	logger := newLogger(cfg.Trace || debug, quiet)
	cfg.Log = logger
	cfg.Dev = true
	runner := vip.NewRunner(cfg, stateFunc)
	if d != nil {
		d.run = runner
		go func() {
			if err := d.Run(); err != nil {
				logger.Error("Debugger failed", err)
			}
			cancel()
		}()
	}

	vipCh := make(chan *vip.VIP)
	go func() {
		started := false
		load := time.After(1 * time.Millisecond)
		for {
			select {
			case <-ctx.Done():
				return
			case <-load:
				logger.Info("Loading program", log.String("file", filepath.Base(romFile)))
				v, err := loadVIP(romFile, cfg)
				if err != nil {
					logger.Error("Loading program failed", err)
					break
				}
				if d != nil {
					d.setSymbols(loadSymbols(logger, romFile+".sym"))
				}
				if !started {
					vipCh <- v
					started = true
				} else {
					logger.Info("Restarting program")
					runner.Swap(v)
				}
			case ev := <-watcher.Event:
				if filepath.Clean(ev.Name) == romFile && !ev.IsAttrib() {
					load = time.After(100 * time.Millisecond)
				}
			case err := <-watcher.Error:
				logger.Warn("Watching program failed", log.Err(err))
			}
		}
	}()

	select {
	case v := <-vipCh:
		return runner.Run(ctx, v), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func loadVIP(romFile string, cfg vip.Config) (*vip.VIP, error) {
	rom, err := os.ReadFile(romFile)
	if err != nil {
		return nil, err
	}
	return vip.New(rom, cfg)
}

// loadSymbols reads the optional symbol file that accompanies a program.
func loadSymbols(logger *log.Logger, symFile string) symbols {
	syms, err := parseSymbols(symFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Reading symbols failed", log.Err(err))
		}
		return nil
	}
	return syms
}
