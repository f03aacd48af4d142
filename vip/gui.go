package vip

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/retroenv/retrogolib/log"
	"golang.org/x/exp/shiny/driver"
	"golang.org/x/exp/shiny/screen"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/paint"
	"golang.org/x/mobile/event/size"

	"github.com/nf/ch8/chip8"
)

var (
	litColor   = color.RGBA{0xff, 0xff, 0xff, 0xff}
	unlitColor = color.RGBA{0x00, 0x00, 0x00, 0xff}
)

type gui struct {
	mu sync.Mutex
	v  *VIP

	scale int
	log   *log.Logger

	buf   screen.Buffer
	tex   screen.Texture
	dirty bool
}

func newGUI(v *VIP, scale int) *gui {
	return &gui{v: v, scale: scale, log: v.log}
}

// swap points the GUI at a new VIP.
func (g *gui) swap(v *VIP) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

func (g *gui) vip() *VIP {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

// Run opens a window and presents the display until exit is closed or the
// window is closed.
func (g *gui) Run(exit <-chan bool) (err error) {
	driver.Main(func(s screen.Screen) {
		var w screen.Window
		w, err = s.NewWindow(&screen.NewWindowOptions{
			Title:  "ch8",
			Width:  chip8.Width * g.scale,
			Height: chip8.Height * g.scale,
		})
		if err != nil {
			return
		}
		defer w.Release()

		if err = g.alloc(s); err != nil {
			return
		}
		defer g.release()

		type update struct{}
		go func() {
			t := time.NewTicker(time.Second / TimerHz)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					w.Send(update{})
				case <-exit:
					w.Send(lifecycle.Event{To: lifecycle.StageDead})
					return
				}
			}
		}()

		var sz size.Event
		for {
			switch e := w.NextEvent().(type) {
			case size.Event:
				sz = e
				if sz.WidthPx+sz.HeightPx == 0 {
					return
				}
				g.dirty = true

			case lifecycle.Event:
				if e.To == lifecycle.StageDead {
					return
				}

			case key.Event:
				if e.Code == key.CodeEscape && e.Direction == key.DirPress {
					return
				}

			case paint.Event:
				g.dirty = true

			case update:
				v := g.vip()
				select {
				case <-v.guiUpdate:
					if v.dirty {
						g.copyDisplay(&v.m.Gfx)
						v.dirty = false
					}
					v.guiUpdateDone <- true
				default:
					// interpreter is busy
				}
				if g.dirty && sz.WidthPx > 0 {
					g.tex.Upload(image.Point{}, g.buf, g.buf.Bounds())
					w.Scale(sz.Bounds(), g.tex, g.tex.Bounds(), draw.Src, nil)
					w.Publish()
					g.dirty = false
				}

			case error:
				g.log.Error("Window event", e)
			}
		}
	})
	return err
}

func (g *gui) alloc(s screen.Screen) (err error) {
	sz := image.Point{chip8.Width, chip8.Height}
	if g.buf, err = s.NewBuffer(sz); err != nil {
		return err
	}
	g.tex, err = s.NewTexture(sz)
	return err
}

func (g *gui) copyDisplay(d *chip8.Display) {
	m := g.buf.RGBA()
	for y := 0; y < chip8.Height; y++ {
		for x := 0; x < chip8.Width; x++ {
			c := unlitColor
			if d.Pixel(x, y) {
				c = litColor
			}
			m.SetRGBA(x, y, c)
		}
	}
	g.dirty = true
}

func (g *gui) release() {
	if g.tex != nil {
		g.tex.Release()
	}
	if g.buf != nil {
		g.buf.Release()
	}
}
