// Command palace is a demo host for the granular tape-synthesis engine.
// It loads a WAV sample, renders the engine into the system audio output
// and plays notes either from a connected MIDI device or from a built-in
// arpeggio.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2/wav"
	"gitlab.com/gomidi/rtmididrv"
	"golang.org/x/sync/errgroup"

	"github.com/palacesynth/palace/pkg/dsp/sample"
	"github.com/palacesynth/palace/pkg/engine"
	"github.com/palacesynth/palace/pkg/midi"
)

const (
	sampleRate  = 44100
	blockFrames = 512
)

func main() {
	log.SetPrefix("palace: ")
	log.SetFlags(0)

	samplePath := flag.String("sample", "", "WAV file to granulate (required)")
	useMIDI := flag.Bool("midi", false, "listen on the first MIDI input instead of the built-in arpeggio")
	density := flag.Float64("density", 30, "grain triggers per second")
	grainMs := flag.Float64("grain", 120, "grain size in milliseconds")
	position := flag.Float64("position", 0.2, "base playback position, 0-1")
	spray := flag.Float64("spray", 0.1, "random position spread, 0-1")
	delayMs := flag.Float64("delay", 350, "tape delay time in milliseconds")
	flutter := flag.Float64("flutter", 0.3, "tape flutter depth, 0-1")
	hiss := flag.Float64("hiss", 0.1, "tape hiss level, 0-1")
	disintegration := flag.Float64("disintegration", 0, "wear amount, 0-1")
	flag.Parse()

	if *samplePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*samplePath, *useMIDI, func(e *engine.Engine) {
		e.SetDensity(*density)
		e.SetGrainSize(*grainMs)
		e.SetPosition(*position)
		e.SetSpray(*spray)
		e.SetDelayTime(*delayMs)
		e.SetDelayFlutter(*flutter)
		e.SetDelayHiss(*hiss)
		e.SetDisintegration(*disintegration)
	}); err != nil {
		log.Fatal(err)
	}
}

func run(samplePath string, useMIDI bool, configure func(*engine.Engine)) error {
	eng := engine.New()
	if err := eng.Prepare(sampleRate, blockFrames); err != nil {
		return err
	}
	configure(eng)

	buf, err := loadWAV(samplePath)
	if err != nil {
		return fmt.Errorf("load %s: %w", samplePath, err)
	}
	if err := eng.LoadSample(buf, samplePath); err != nil {
		return err
	}
	log.Printf("loaded %s: %d frames, %d channels at %.0f Hz",
		samplePath, buf.Frames(), buf.Channels(), buf.Rate())

	queue := midi.NewEventQueue()
	r := newRenderer(eng, queue)

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return fmt.Errorf("audio output: %w", err)
	}
	<-ready

	player := otoCtx.NewPlayer(r)
	player.Play()
	defer player.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if useMIDI {
		g.Go(func() error { return listenMIDI(ctx, queue) })
	} else {
		g.Go(func() error { return arpeggio(ctx, queue) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	log.Println("playing, ctrl-c to stop")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// loadWAV decodes a WAV file into an engine sample buffer.
func loadWAV(path string) (*sample.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sample.ErrDecode, err)
	}
	defer streamer.Close()

	var left, right []float32
	frames := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(frames)
		for i := 0; i < n; i++ {
			left = append(left, float32(frames[i][0]))
			right = append(right, float32(frames[i][1]))
		}
		if !ok {
			break
		}
	}

	channels := [][]float32{left, right}
	if format.NumChannels == 1 {
		channels = channels[:1]
	}
	return sample.NewBuffer(channels, float64(format.SampleRate))
}

// renderer adapts the engine's block renderer to the byte stream the audio
// backend pulls from. The backend may request arbitrary byte counts, so
// rendered blocks are carried over between reads.
type renderer struct {
	eng    *engine.Engine
	queue  *midi.EventQueue
	events []midi.Event

	left    []float32
	right   []float32
	block   []byte
	pending []byte
}

func newRenderer(eng *engine.Engine, queue *midi.EventQueue) *renderer {
	return &renderer{
		eng:    eng,
		queue:  queue,
		events: make([]midi.Event, 0, 128),
		left:   make([]float32, blockFrames),
		right:  make([]float32, blockFrames),
		block:  make([]byte, blockFrames*8),
	}
}

func (r *renderer) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			r.events = r.queue.Drain(r.events[:0])
			if err := r.eng.RenderBlock(r.left, r.right, blockFrames, r.events); err != nil {
				return n, err
			}
			for i := 0; i < blockFrames; i++ {
				binary.LittleEndian.PutUint32(r.block[i*8:], math.Float32bits(r.left[i]))
				binary.LittleEndian.PutUint32(r.block[i*8+4:], math.Float32bits(r.right[i]))
			}
			r.pending = r.block
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	return n, nil
}

// listenMIDI feeds note events from the first MIDI input into the queue.
func listenMIDI(ctx context.Context, queue *midi.EventQueue) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("midi driver: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return fmt.Errorf("midi inputs: %w", err)
	}
	if len(ins) == 0 {
		return fmt.Errorf("no MIDI inputs found")
	}

	in := ins[0]
	if err := in.Open(); err != nil {
		return fmt.Errorf("open %s: %w", in.String(), err)
	}
	defer in.Close()
	log.Printf("listening on %s", in.String())

	err = in.SetListener(func(data []byte, deltaMicroseconds int64) {
		if ev := parseMIDI(data); ev != nil {
			queue.Add(ev)
		}
	})
	if err != nil {
		return fmt.Errorf("midi listener: %w", err)
	}
	defer in.StopListening()

	<-ctx.Done()
	return nil
}

// parseMIDI converts a raw MIDI message into an engine event, or nil for
// messages the engine ignores.
func parseMIDI(data []byte) midi.Event {
	if len(data) < 2 {
		return nil
	}
	status := data[0] & 0xF0
	channel := data[0] & 0x0F

	switch status {
	case 0x90:
		if len(data) < 3 {
			return nil
		}
		if data[2] == 0 {
			return midi.NoteOffEvent{
				BaseEvent:  midi.BaseEvent{EventChannel: channel},
				NoteNumber: data[1],
			}
		}
		return midi.NoteOnEvent{
			BaseEvent:  midi.BaseEvent{EventChannel: channel},
			NoteNumber: data[1],
			Velocity:   data[2],
		}
	case 0x80:
		return midi.NoteOffEvent{
			BaseEvent:  midi.BaseEvent{EventChannel: channel},
			NoteNumber: data[1],
		}
	case 0xB0:
		if len(data) < 3 {
			return nil
		}
		return midi.ControlChangeEvent{
			BaseEvent:  midi.BaseEvent{EventChannel: channel},
			Controller: data[1],
			Value:      data[2],
		}
	case 0xE0:
		if len(data) < 3 {
			return nil
		}
		// 14-bit value, LSB first, recentered around zero.
		raw := int16(uint16(data[1])|uint16(data[2])<<7) - 8192
		return midi.PitchBendEvent{
			BaseEvent: midi.BaseEvent{EventChannel: channel},
			Value:     raw,
		}
	}
	return nil
}

// arpeggio queues a slow minor arpeggio so the engine makes sound without
// a MIDI device attached.
func arpeggio(ctx context.Context, queue *midi.EventQueue) error {
	notes := []uint8{48, 60, 63, 67, 70, 72}
	ticker := time.NewTicker(450 * time.Millisecond)
	defer ticker.Stop()

	i := 0
	var sounding uint8
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if sounding != 0 {
				queue.Add(midi.NoteOffEvent{NoteNumber: sounding})
			}
			sounding = notes[i%len(notes)]
			queue.Add(midi.NoteOnEvent{NoteNumber: sounding, Velocity: 96})
			i++
		}
	}
}
