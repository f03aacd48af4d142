package vip

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Buzzer is fed once per timer tick with whether the sound timer is running.
type Buzzer interface {
	Sound(on bool)
}

const (
	SampleRate = 44100
	ToneHz     = 440

	samplesPerTick = SampleRate / TimerHz
	amplitude      = 0x2000
)

// WAVRecorder is a Buzzer that records the tone to a 16-bit mono WAV file.
type WAVRecorder struct {
	f     *os.File
	enc   *wav.Encoder
	buf   *audio.IntBuffer
	phase int
	err   error
}

// NewWAVRecorder creates the named file and returns a WAVRecorder that
// writes to it. The file is complete once Close has been called.
func NewWAVRecorder(name string) (*WAVRecorder, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &WAVRecorder{
		f:   f,
		enc: wav.NewEncoder(f, SampleRate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: SampleRate},
			Data:           make([]int, samplesPerTick),
			SourceBitDepth: 16,
		},
	}, nil
}

// Sound appends one tick of square wave, or of silence if on is false.
func (r *WAVRecorder) Sound(on bool) {
	if r.err != nil {
		return
	}
	const halfPeriod = SampleRate / ToneHz / 2
	for i := range r.buf.Data {
		s := 0
		if on {
			s = amplitude
			if r.phase/halfPeriod%2 == 1 {
				s = -amplitude
			}
			r.phase++
		}
		r.buf.Data[i] = s
	}
	if !on {
		r.phase = 0
	}
	if err := r.enc.Write(r.buf); err != nil {
		r.err = fmt.Errorf("wav: %w", err)
	}
}

// Close finishes the WAV file. It returns the first error encountered
// while recording.
func (r *WAVRecorder) Close() error {
	err := r.enc.Close()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	if r.err != nil {
		return r.err
	}
	return err
}
