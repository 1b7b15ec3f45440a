package bridge

import (
	"testing"

	"github.com/konclui/speedbridge/pkg/audio"
)

// fillTone writes a constant-amplitude span into pcm between two second
// offsets at the default sample rate.
func fillTone(pcm []int16, fromSec, toSec float64, amp int16) {
	start := int(fromSec * audio.DefaultSampleRate)
	end := int(toSec * audio.DefaultSampleRate)
	for i := start; i < end && i < len(pcm); i++ {
		pcm[i] = amp
	}
}

func TestSegmentSpeakers(t *testing.T) {
	total := 25 * audio.DefaultSampleRate
	inbound := make([]int16, total)
	outbound := make([]int16, total)

	// Announcement voice for the first three seconds, SDR answers at 5s,
	// lead comes onto the outbound track after the dial at 20s.
	fillTone(outbound, 0, 3, 2000)
	fillTone(inbound, 5, 7, 2000)
	fillTone(outbound, 20, 23, 2000)

	segments := SegmentSpeakers(inbound, outbound, audio.DefaultSampleRate, DefaultAnnouncementWindowSec)
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segments), segments)
	}

	if segments[0].Speaker != SpeakerBianca {
		t.Errorf("expected first segment BIANCA, got %s", segments[0].Speaker)
	}
	if segments[1].Speaker != SpeakerSDR {
		t.Errorf("expected second segment SDR, got %s", segments[1].Speaker)
	}
	if segments[2].Speaker != SpeakerLead {
		t.Errorf("expected third segment LEAD, got %s", segments[2].Speaker)
	}

	if segments[1].StartSec < 4.5 || segments[1].StartSec > 5.5 {
		t.Errorf("SDR segment start out of range: %f", segments[1].StartSec)
	}
	if segments[2].StartSec < 19.5 {
		t.Errorf("lead segment should start after the dial: %f", segments[2].StartSec)
	}
}

func TestSegmentSpeakersAnnouncementWindow(t *testing.T) {
	total := 12 * audio.DefaultSampleRate
	inbound := make([]int16, total)
	outbound := make([]int16, total)

	// Same outbound audio: inside a 5s window it is the announcement,
	// after it the lead.
	fillTone(outbound, 1, 3, 2000)
	fillTone(outbound, 8, 10, 2000)

	segments := SegmentSpeakers(inbound, outbound, audio.DefaultSampleRate, 5.0)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Speaker != SpeakerBianca {
		t.Errorf("expected BIANCA inside window, got %s", segments[0].Speaker)
	}
	if segments[1].Speaker != SpeakerLead {
		t.Errorf("expected LEAD after window, got %s", segments[1].Speaker)
	}
}

func TestSegmentSpeakersDropsShortBlips(t *testing.T) {
	total := 10 * audio.DefaultSampleRate
	inbound := make([]int16, total)
	outbound := make([]int16, total)

	// One 300ms blip aligned to a single window, below the minimum
	// segment duration.
	fillTone(inbound, 2.1, 2.4, 2000)

	segments := SegmentSpeakers(inbound, outbound, audio.DefaultSampleRate, DefaultAnnouncementWindowSec)
	if len(segments) != 0 {
		t.Errorf("expected blip to be dropped, got %+v", segments)
	}
}

func TestSegmentSpeakersMergesSameSpeakerGaps(t *testing.T) {
	total := 10 * audio.DefaultSampleRate
	inbound := make([]int16, total)
	outbound := make([]int16, total)

	// Two SDR utterances 600ms apart merge into one segment.
	fillTone(inbound, 1, 2, 2000)
	fillTone(inbound, 2.6, 3.6, 2000)

	segments := SegmentSpeakers(inbound, outbound, audio.DefaultSampleRate, DefaultAnnouncementWindowSec)
	if len(segments) != 1 {
		t.Fatalf("expected merged segment, got %d", len(segments))
	}
	if segments[0].Speaker != SpeakerSDR {
		t.Errorf("expected SDR, got %s", segments[0].Speaker)
	}
	if segments[0].EndSec-segments[0].StartSec < 2.0 {
		t.Errorf("merged segment too short: %f", segments[0].EndSec-segments[0].StartSec)
	}
}

func TestSegmentSpeakersAlternation(t *testing.T) {
	total := 30 * audio.DefaultSampleRate
	inbound := make([]int16, total)
	outbound := make([]int16, total)

	fillTone(outbound, 0, 2, 2000)
	fillTone(inbound, 3, 5, 2000)
	fillTone(outbound, 16, 18, 2000)
	fillTone(inbound, 19, 21, 2000)
	fillTone(outbound, 22, 24, 2000)

	segments := SegmentSpeakers(inbound, outbound, audio.DefaultSampleRate, DefaultAnnouncementWindowSec)
	for i := 1; i < len(segments); i++ {
		if segments[i].Speaker == segments[i-1].Speaker {
			t.Errorf("consecutive segments share speaker %s at %d", segments[i].Speaker, i)
		}
	}
}

func TestSegmentSpeakersEmpty(t *testing.T) {
	if segments := SegmentSpeakers(nil, nil, audio.DefaultSampleRate, DefaultAnnouncementWindowSec); segments != nil {
		t.Errorf("expected nil for empty tracks, got %+v", segments)
	}
}

func TestMatchesAnnouncement(t *testing.T) {
	positives := []string{
		"Novo lead: Maria Silva.",
		"Conectando com o novo lead agora.",
		"Não foi possível confirmar o atendimento.",
		"A ligação será encerrada.",
		"Agendado para amanhã às 10h.",
	}
	for _, text := range positives {
		if !MatchesAnnouncement(text) {
			t.Errorf("expected announcement match for %q", text)
		}
	}

	if MatchesAnnouncement("Oi, aqui é a Maria, tudo bem?") {
		t.Error("normal speech must not match announcement phrases")
	}
}

func TestCorrectAnnouncementSegments(t *testing.T) {
	segments := []Segment{
		{Speaker: SpeakerLead, Text: "Conectando com o novo lead agora."},
		{Speaker: SpeakerLead, Text: "Alô, quem fala?"},
		{Speaker: SpeakerSDR, Text: "Novo lead confirmado."},
	}

	corrected := CorrectAnnouncementSegments(segments)
	if corrected[0].Speaker != SpeakerBianca {
		t.Error("announcement text on lead track must be reassigned")
	}
	if corrected[1].Speaker != SpeakerLead {
		t.Error("real lead speech must stay attributed to the lead")
	}
	if corrected[2].Speaker != SpeakerSDR {
		t.Error("SDR segments are never reassigned")
	}
}
