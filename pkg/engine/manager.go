package engine

import (
	"github.com/palacesynth/palace/pkg/dsp/wear"
)

// NumVoices is the fixed polyphony.
const NumVoices = 8

// VoiceManager assigns incoming notes to a fixed set of voices, stealing
// when none are free. At most one active voice maps to any note.
type VoiceManager struct {
	voices [NumVoices]*Voice
}

// NewVoiceManager creates the voice set, all wired to the shared tracker.
func NewVoiceManager(tracker *wear.Tracker, seed int64) *VoiceManager {
	m := &VoiceManager{}
	for i := range m.voices {
		m.voices[i] = NewVoice(tracker, seed+int64(i)*7919)
	}
	return m
}

// Prepare prepares every voice. Control context only.
func (m *VoiceManager) Prepare(sampleRate float64, maxBlockFrames int) {
	for _, v := range m.voices {
		v.Prepare(sampleRate, maxBlockFrames)
	}
}

// NoteOn assigns a voice to the note: reuse the voice already sounding the
// same note, else any idle voice, else steal. Stealing prefers the
// releasing voice that has been sounding longest, then the oldest active
// voice.
func (m *VoiceManager) NoteOn(note, velocity uint8) *Voice {
	for _, v := range m.voices {
		if v.IsActive() && v.Note() == note {
			v.Trigger(note, velocity)
			return v
		}
	}

	for _, v := range m.voices {
		if !v.IsActive() {
			v.Trigger(note, velocity)
			return v
		}
	}

	victim := m.stealCandidate()
	victim.Trigger(note, velocity)
	return victim
}

// NoteOff releases the voice sounding the note, if any.
func (m *VoiceManager) NoteOff(note uint8) {
	for _, v := range m.voices {
		if v.IsActive() && v.Note() == note {
			v.Release()
			return
		}
	}
}

// AllNotesOff releases every active voice.
func (m *VoiceManager) AllNotesOff() {
	for _, v := range m.voices {
		v.Release()
	}
}

// AllSoundOff stops every voice immediately.
func (m *VoiceManager) AllSoundOff() {
	for _, v := range m.voices {
		v.Stop()
	}
}

// ActiveCount returns the number of sounding voices.
func (m *VoiceManager) ActiveCount() int {
	n := 0
	for _, v := range m.voices {
		if v.IsActive() {
			n++
		}
	}
	return n
}

// Voices returns the fixed voice set.
func (m *VoiceManager) Voices() []*Voice {
	return m.voices[:]
}

func (m *VoiceManager) stealCandidate() *Voice {
	var best *Voice

	// A releasing voice is always preferred over a held one, regardless
	// of relative age.
	for _, v := range m.voices {
		if v.State() != EnvelopeRelease {
			continue
		}
		if best == nil || v.Age() > best.Age() {
			best = v
		}
	}
	if best != nil {
		return best
	}

	for _, v := range m.voices {
		if best == nil || v.Age() > best.Age() {
			best = v
		}
	}
	return best
}
