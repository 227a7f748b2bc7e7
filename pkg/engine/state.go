package engine

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/palacesynth/palace/pkg/dsp/modulation"
	"github.com/palacesynth/palace/pkg/dsp/wear"
)

const stateVersion uint32 = 1

var stateMagic = []byte("PALACE")

// SaveState writes the engine-owned state: every parameter value, the LFO
// waveform and routing set, the sample path and the sparse wear map.
// Control context only.
func (e *Engine) SaveState(w io.Writer) error {
	if _, err := w.Write(stateMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, stateVersion); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint8(e.lfoWaveform.Load())); err != nil {
		return err
	}

	params := e.registry.All()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(params))); err != nil {
		return err
	}
	for _, p := range params {
		if err := binary.Write(w, binary.LittleEndian, p.ID); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, p.Value()); err != nil {
			return err
		}
	}

	path := []byte(e.SamplePath())
	if err := binary.Write(w, binary.LittleEndian, uint16(len(path))); err != nil {
		return err
	}
	if _, err := w.Write(path); err != nil {
		return err
	}

	// Wear is sparse: only regions that have actually degraded are stored.
	var worn []uint16
	for i := 0; i < wear.NumRegions; i++ {
		if e.tracker.RegionLife(i) < 1 {
			worn = append(worn, uint16(i))
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(worn))); err != nil {
		return err
	}
	for _, idx := range worn {
		if err := binary.Write(w, binary.LittleEndian, idx); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.tracker.RegionLife(int(idx))); err != nil {
			return err
		}
	}

	routed := e.RoutedParams()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(routed))); err != nil {
		return err
	}
	for _, id := range routed {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
	}

	return nil
}

// LoadState restores state written by SaveState. Parameter IDs that no
// longer exist are skipped. The sample itself is not loaded here; the host
// reads SamplePath afterwards and feeds LoadSample. Control context only.
func (e *Engine) LoadState(r io.Reader) error {
	magic := make([]byte, len(stateMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return err
	}
	if string(magic) != string(stateMagic) {
		return fmt.Errorf("engine: invalid state format")
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version > stateVersion {
		return fmt.Errorf("engine: state version %d is newer than supported version %d", version, stateVersion)
	}

	var waveform uint8
	if err := binary.Read(r, binary.LittleEndian, &waveform); err != nil {
		return err
	}
	e.lfoWaveform.Store(int32(modulation.Waveform(waveform)))

	var paramCount uint32
	if err := binary.Read(r, binary.LittleEndian, &paramCount); err != nil {
		return err
	}
	for i := uint32(0); i < paramCount; i++ {
		var id uint32
		var value float64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &value); err != nil {
			return err
		}
		if p := e.registry.Get(id); p != nil {
			p.SetValue(value)
		}
	}

	var pathLen uint16
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return err
	}
	path := make([]byte, pathLen)
	if _, err := io.ReadFull(r, path); err != nil {
		return err
	}
	e.mu.Lock()
	e.samplePath = string(path)
	e.mu.Unlock()

	e.tracker.Reset()
	var wornCount uint32
	if err := binary.Read(r, binary.LittleEndian, &wornCount); err != nil {
		return err
	}
	for i := uint32(0); i < wornCount; i++ {
		var idx uint16
		var life float32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &life); err != nil {
			return err
		}
		if int(idx) < wear.NumRegions {
			e.tracker.SetRegionLife(int(idx), life)
		}
	}

	for _, p := range e.registry.All() {
		p.SetModulated(false)
	}
	var routedCount uint32
	if err := binary.Read(r, binary.LittleEndian, &routedCount); err != nil {
		return err
	}
	for i := uint32(0); i < routedCount; i++ {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		e.SetModulated(id, true)
	}

	return nil
}
