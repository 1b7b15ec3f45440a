package audio

import (
	"bytes"
	"encoding/binary"
)

// DefaultSampleRate is the telephony rate used on the media stream.
const DefaultSampleRate = 8000

// frameMillis is the duration covered by one provider media frame.
const frameMillis = 20

// Chunk is one μ-law media frame with its provider-supplied timestamp
// (milliseconds since stream start). Chunks are immutable once appended.
type Chunk struct {
	Timestamp int64
	Payload   []byte
}

func writeWavHeader(buf *bytes.Buffer, channels, sampleRate, dataLen int) {
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	blockAlign := channels * 2
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
}

// NewMonoWav wraps 16-bit PCM samples in a 44-byte RIFF/PCM header.
func NewMonoWav(pcm []int16, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	writeWavHeader(buf, 1, sampleRate, len(pcm)*2)
	buf.Write(PCM16ToBytes(pcm))
	return buf.Bytes()
}

// NewStereoWav interleaves two PCM tracks as left/right channels. The
// shorter track is padded with silence to the longer length.
func NewStereoWav(left, right []int16, sampleRate int) []byte {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}

	interleaved := make([]int16, n*2)
	for i := 0; i < n; i++ {
		if i < len(left) {
			interleaved[i*2] = left[i]
		}
		if i < len(right) {
			interleaved[i*2+1] = right[i]
		}
	}

	buf := new(bytes.Buffer)
	writeWavHeader(buf, 2, sampleRate, len(interleaved)*2)
	buf.Write(PCM16ToBytes(interleaved))
	return buf.Bytes()
}

// SynchronizeTracks aligns the two μ-law chunk sequences on their provider
// timestamps and decodes them into equal-length PCM buffers. Gaps stay
// silent, which is what absorbs the multi-second delay between SDR pickup
// and lead answer. The outbound track (announcement + lead) becomes the
// left channel, the inbound track (SDR) the right channel.
func SynchronizeTracks(inbound, outbound []Chunk, sampleRate int) (left, right []int16) {
	if len(inbound) == 0 && len(outbound) == 0 {
		return nil, nil
	}

	globalStart := int64(1<<62 - 1)
	globalEnd := int64(0)
	for _, track := range [][]Chunk{inbound, outbound} {
		if len(track) == 0 {
			continue
		}
		if first := track[0].Timestamp; first < globalStart {
			globalStart = first
		}
		if last := track[len(track)-1].Timestamp + frameMillis; last > globalEnd {
			globalEnd = last
		}
	}

	total := int(((globalEnd-globalStart)*int64(sampleRate) + 999) / 1000)
	left = make([]int16, total)
	right = make([]int16, total)

	fill := func(dst []int16, chunks []Chunk) {
		for _, c := range chunks {
			offset := int((c.Timestamp - globalStart) * int64(sampleRate) / 1000)
			for i, b := range c.Payload {
				pos := offset + i
				if pos < 0 || pos >= len(dst) {
					continue
				}
				dst[pos] = muLawDecodeTable[b]
			}
		}
	}

	fill(left, outbound)
	fill(right, inbound)
	return left, right
}
