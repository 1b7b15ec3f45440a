package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestNewMonoWav(t *testing.T) {
	pcm := []int16{1, 2, 3, 4}
	wav := NewMonoWav(pcm, 8000)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)*2
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}

	if channels := binary.LittleEndian.Uint16(wav[22:]); channels != 1 {
		t.Errorf("Expected 1 channel, got %d", channels)
	}
}

func TestNewStereoWav(t *testing.T) {
	left := []int16{100, 200, 300}
	right := []int16{-100}
	wav := NewStereoWav(left, right, 8000)

	if channels := binary.LittleEndian.Uint16(wav[22:]); channels != 2 {
		t.Errorf("Expected 2 channels, got %d", channels)
	}
	if blockAlign := binary.LittleEndian.Uint16(wav[32:]); blockAlign != 4 {
		t.Errorf("Expected blockAlign 4, got %d", blockAlign)
	}

	// 3 interleaved sample pairs, right padded with silence.
	expectedLen := 44 + 3*2*2
	if len(wav) != expectedLen {
		t.Fatalf("Expected length %d, got %d", expectedLen, len(wav))
	}

	data := wav[44:]
	if s := int16(binary.LittleEndian.Uint16(data[0:])); s != 100 {
		t.Errorf("Expected left[0]=100, got %d", s)
	}
	if s := int16(binary.LittleEndian.Uint16(data[2:])); s != -100 {
		t.Errorf("Expected right[0]=-100, got %d", s)
	}
	if s := int16(binary.LittleEndian.Uint16(data[6:])); s != 0 {
		t.Errorf("Expected padded right[1]=0, got %d", s)
	}
}

func TestMuLawToPCM16(t *testing.T) {
	pcm := MuLawToPCM16([]byte{0x00, 0x7F, 0xFF})
	if pcm[0] != -32124 {
		t.Errorf("Expected -32124, got %d", pcm[0])
	}
	if pcm[1] != 0 {
		t.Errorf("Expected 0 for 0x7F, got %d", pcm[1])
	}
	if pcm[2] != 0 {
		t.Errorf("Expected 0 for 0xFF, got %d", pcm[2])
	}
}

func TestSynchronizeTracks(t *testing.T) {
	// 20ms frames at 8kHz are 160 samples. Inbound (SDR) starts 6s after
	// the outbound announcement.
	payload := bytes.Repeat([]byte{0x00}, 160)
	outbound := []Chunk{
		{Timestamp: 0, Payload: payload},
		{Timestamp: 20, Payload: payload},
	}
	inbound := []Chunk{
		{Timestamp: 6000, Payload: payload},
	}

	left, right := SynchronizeTracks(inbound, outbound, 8000)

	// globalEnd = 6000 + 20 = 6020ms => 48160 samples on both channels.
	if len(left) != 48160 || len(right) != 48160 {
		t.Fatalf("Expected 48160 samples per channel, got %d/%d", len(left), len(right))
	}

	if left[0] != -32124 {
		t.Errorf("Expected decoded outbound sample at left[0], got %d", left[0])
	}
	if right[0] != 0 {
		t.Errorf("Expected silence at right[0], got %d", right[0])
	}

	sdrOffset := 6000 * 8
	if right[sdrOffset] != -32124 {
		t.Errorf("Expected decoded inbound sample at right[%d], got %d", sdrOffset, right[sdrOffset])
	}
	if right[sdrOffset-1] != 0 {
		t.Errorf("Expected silence just before SDR pickup, got %d", right[sdrOffset-1])
	}
}

func TestSynchronizeTracksEmptyInbound(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00}, 160)
	outbound := []Chunk{{Timestamp: 0, Payload: payload}}

	left, right := SynchronizeTracks(nil, outbound, 8000)
	if len(left) != 160 || len(right) != 160 {
		t.Fatalf("Expected 160 samples per channel, got %d/%d", len(left), len(right))
	}
	for _, s := range right {
		if s != 0 {
			t.Fatalf("Expected all-silence inbound channel, got %d", s)
		}
	}
}

func TestSynchronizeTracksBothEmpty(t *testing.T) {
	left, right := SynchronizeTracks(nil, nil, 8000)
	if left != nil || right != nil {
		t.Errorf("Expected nil tracks for empty input")
	}
}
