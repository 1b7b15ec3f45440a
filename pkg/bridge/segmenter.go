package bridge

import (
	"math"
	"regexp"
)

// Speaker identifies who owns a segment of the stereo recording.
type Speaker string

const (
	// SpeakerSDR is the sales agent on the inbound track.
	SpeakerSDR Speaker = "SDR"
	// SpeakerLead is the prospect on the outbound track after the dial.
	SpeakerLead Speaker = "LEAD"
	// SpeakerBianca is the system voice that reads the announcement.
	SpeakerBianca Speaker = "BIANCA"
)

// Segment is a contiguous span attributed to one speaker.
type Segment struct {
	Speaker     Speaker
	StartSample int
	EndSample   int
	StartSec    float64
	EndSec      float64
	Text        string
}

const (
	segmentWindowSamples = 2400 // 300ms at 8kHz
	segmentEnergyFloor   = 50.0
	segmentMinDurationMs = 500
	segmentMergeGapMs    = 1000
)

// DefaultAnnouncementWindowSec bounds the span of the outbound track that
// is attributed to the announcement voice rather than the lead.
const DefaultAnnouncementWindowSec = 15.0

// announcementPatterns match the fixed phrases the system voice speaks.
// Transcribed lead segments that hit one of these were misattributed TTS
// ring-down and get reassigned.
var announcementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)novo\s+lead`),
	regexp.MustCompile(`(?i)conectando\s+com\s+o`),
	regexp.MustCompile(`(?i)n[ãa]o\s+foi\s+poss[íi]vel\s+confirmar`),
	regexp.MustCompile(`(?i)a\s+liga[çc][ãa]o\s+ser[áa]\s+encerrada`),
	regexp.MustCompile(`(?i)agendad[oa]\s+para`),
	regexp.MustCompile(`(?i)diga\s+algo\s+para\s+confirmar`),
	regexp.MustCompile(`(?i)pediu\s+para\s+falar\s+com\s+especialista`),
}

// MatchesAnnouncement reports whether text contains one of the phrases the
// announcement voice speaks.
func MatchesAnnouncement(text string) bool {
	for _, p := range announcementPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// SegmentSpeakers walks the two synchronized PCM tracks in 300ms windows
// and emits ordered, non-overlapping speaker segments. The inbound (SDR)
// track wins a window when it is clearly louder; the outbound track is the
// announcement voice inside the announcement window and the lead after.
func SegmentSpeakers(inbound, outbound []int16, sampleRate int, announcementWindowSec float64) []Segment {
	n := len(inbound)
	if len(outbound) > n {
		n = len(outbound)
	}
	if n == 0 {
		return nil
	}

	type window struct {
		speaker Speaker
		start   int
	}
	var raw []window
	for start := 0; start < n; start += segmentWindowSamples {
		end := start + segmentWindowSamples
		if end > n {
			end = n
		}
		sdrEnergy := windowRMS(inbound, start, end)
		outEnergy := windowRMS(outbound, start, end)

		var speaker Speaker
		switch {
		case sdrEnergy > segmentEnergyFloor && sdrEnergy > outEnergy*1.2:
			speaker = SpeakerSDR
		case outEnergy > segmentEnergyFloor && outEnergy >= sdrEnergy*0.8:
			if float64(start)/float64(sampleRate) < announcementWindowSec {
				speaker = SpeakerBianca
			} else {
				speaker = SpeakerLead
			}
		default:
			continue // silence
		}
		raw = append(raw, window{speaker: speaker, start: start})
	}
	if len(raw) == 0 {
		return nil
	}

	mergeGap := segmentMergeGapMs * sampleRate / 1000

	var segments []Segment
	current := Segment{
		Speaker:     raw[0].speaker,
		StartSample: raw[0].start,
		EndSample:   raw[0].start + segmentWindowSamples,
	}
	for _, w := range raw[1:] {
		sameSpeaker := w.speaker == current.Speaker
		gap := w.start - current.EndSample
		if sameSpeaker && gap < mergeGap {
			current.EndSample = w.start + segmentWindowSamples
			continue
		}
		segments = append(segments, current)
		current = Segment{
			Speaker:     w.speaker,
			StartSample: w.start,
			EndSample:   w.start + segmentWindowSamples,
		}
	}
	segments = append(segments, current)

	minSamples := segmentMinDurationMs * sampleRate / 1000
	kept := segments[:0]
	for _, seg := range segments {
		if seg.EndSample > n {
			seg.EndSample = n
		}
		if seg.EndSample-seg.StartSample < minSamples {
			continue
		}
		seg.StartSec = float64(seg.StartSample) / float64(sampleRate)
		seg.EndSec = float64(seg.EndSample) / float64(sampleRate)
		kept = append(kept, seg)
	}

	// Dropping short segments can leave same-speaker neighbours; collapse
	// them so consecutive segments always alternate speakers.
	var out []Segment
	for _, seg := range kept {
		if len(out) > 0 && out[len(out)-1].Speaker == seg.Speaker {
			out[len(out)-1].EndSample = seg.EndSample
			out[len(out)-1].EndSec = seg.EndSec
			continue
		}
		out = append(out, seg)
	}
	return out
}

// CorrectAnnouncementSegments reassigns transcribed LEAD segments to the
// announcement voice when their text matches a known announcement phrase.
func CorrectAnnouncementSegments(segments []Segment) []Segment {
	for i := range segments {
		if segments[i].Speaker == SpeakerLead && MatchesAnnouncement(segments[i].Text) {
			segments[i].Speaker = SpeakerBianca
		}
	}
	return segments
}

func windowRMS(pcm []int16, start, end int) float64 {
	if start >= len(pcm) {
		return 0
	}
	if end > len(pcm) {
		end = len(pcm)
	}
	if end <= start {
		return 0
	}
	var sum float64
	for _, s := range pcm[start:end] {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(end-start))
}
