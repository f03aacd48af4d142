// Command ch8 executes CHIP-8 programs.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"

	"github.com/nf/ch8/chip8"
	"github.com/nf/ch8/vip"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

type options struct {
	cfg        vip.Config
	quiet      bool
	screenshot string
	wav        string
}

func main() {
	var (
		cliFlag   = flag.Bool("cli", false, "disable the GUI and print the display when the program stops")
		devFlag   = flag.Bool("dev", false, "enable developer mode (restart the program when the file changes)")
		debugFlag = flag.Bool("debug", false, "enable debugger (implies -dev)")
		traceFlag = flag.Bool("trace", false, "log every executed instruction")
		quietFlag = flag.Bool("quiet", false, "only log errors")

		hzFlag     = flag.Int("hz", vip.DefaultHz, "instruction clock `rate` in Hz")
		scaleFlag  = flag.Int("scale", vip.DefaultScale, "window and screenshot pixels per display pixel")
		cyclesFlag = flag.Int("cycles", 0, "stop after `n` instructions (0 runs until interrupted)")

		screenshotFlag = flag.String("screenshot", "", "write the final display as PNG to `file`")
		wavFlag        = flag.String("wav", "", "record the buzzer as WAV to `file`")
		disasmFlag     = flag.Bool("disasm", false, "print a disassembly of the program and exit")
		statsFlag      = flag.String("statsview", "", "serve runtime statistics on `addr`")
		cpuProfileFlag = flag.String("cpu_profile", "", "write CPU profile to `file`")
		versionFlag    = flag.Bool("version", false, "print version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <program.ch8>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if *versionFlag {
		fmt.Printf("ch8 version: %s\n", buildinfo.Version(version, commit, date))
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
	}
	romFile := flag.Arg(0)

	if *disasmFlag {
		if err := disasm(os.Stdout, romFile); err != nil {
			fmt.Fprintf(os.Stderr, "ch8: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if addr := *statsFlag; addr != "" {
		go func() {
			viewer.SetConfiguration(viewer.WithAddr(addr))
			statsview.New().Start()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	opts := options{
		cfg: vip.Config{
			GUI:    !*cliFlag,
			Hz:     *hzFlag,
			Scale:  *scaleFlag,
			Cycles: *cyclesFlag,
			Trace:  *traceFlag,
		},
		quiet:      *quietFlag,
		screenshot: *screenshotFlag,
		wav:        *wavFlag,
	}

	if *devFlag || *debugFlag {
		code, err := devMode(ctx, opts.cfg, *debugFlag, opts.quiet, romFile)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "ch8: %v\n", err)
			os.Exit(1)
		}
		os.Exit(code)
	}

	logger := newLogger(*traceFlag, *quietFlag)
	opts.cfg.Log = logger
	if addr := *statsFlag; addr != "" {
		logger.Info("Serving statistics", log.String("url", "http://"+addr+"/debug/statsview"))
	}

	var cpuProfile io.Closer
	if prof := *cpuProfileFlag; prof != "" {
		f, err := os.Create(prof)
		if err != nil {
			logger.Fatal("Creating CPU profile file failed", log.Err(err))
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Fatal("Starting CPU profile failed", log.Err(err))
		}
		cpuProfile = f
	}

	code, err := run(ctx, romFile, opts)

	if f := cpuProfile; f != nil {
		pprof.StopCPUProfile()
		f.Close()
	}

	if err != nil {
		logger.Fatal("Running program failed", log.Err(err))
	}
	os.Exit(code)
}

func newLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

func run(ctx context.Context, romFile string, opts options) (code int, err error) {
	rom, err := os.ReadFile(romFile)
	if err != nil {
		return 0, err
	}

	cfg := opts.cfg
	if opts.wav != "" {
		rec, err := vip.NewWAVRecorder(opts.wav)
		if err != nil {
			return 0, err
		}
		defer func() {
			if cerr := rec.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("writing %s: %w", opts.wav, cerr)
			}
		}()
		cfg.Buzzer = rec
	}

	v, err := vip.New(rom, cfg)
	if err != nil {
		return 0, err
	}
	code = vip.NewRunner(cfg, nil).Run(ctx, v)

	m := v.Machine()
	if !cfg.GUI {
		fmt.Print(m.Gfx.String())
	}
	if opts.screenshot != "" {
		if err := writeScreenshot(opts.screenshot, &m.Gfx, cfg.Scale); err != nil {
			return code, err
		}
	}
	return code, nil
}

func writeScreenshot(name string, d *chip8.Display, scale int) error {
	var buf bytes.Buffer
	if err := vip.WritePNG(&buf, d, scale); err != nil {
		return err
	}
	return os.WriteFile(name, buf.Bytes(), 0o644)
}

func disasm(w io.Writer, romFile string) error {
	rom, err := os.ReadFile(romFile)
	if err != nil {
		return err
	}
	if len(rom) > chip8.MemSize-chip8.ProgramStart {
		return fmt.Errorf("%s: %w", romFile, chip8.ErrProgramTooLarge)
	}
	return chip8.Disassemble(w, rom, chip8.ProgramStart)
}
