package capture

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the capture rate expected from the microphone.
	SampleRate = 16000
	wavHeader  = 44
)

// EncodeWAV wraps mono PCM16LE samples in a canonical RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	out := make([]byte, wavHeader+len(pcm))
	le := binary.LittleEndian
	copy(out[0:], "RIFF")
	le.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	le.PutUint32(out[16:], 16)
	le.PutUint16(out[20:], 1) // PCM
	le.PutUint16(out[22:], 1) // mono
	le.PutUint32(out[24:], uint32(sampleRate))
	le.PutUint32(out[28:], uint32(sampleRate*2))
	le.PutUint16(out[32:], 2)
	le.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	le.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[wavHeader:], pcm)
	return out
}

// Level maps the RMS of a PCM16LE frame onto 0-100 for the voice visualizer.
func Level(pcm []byte) int {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	// normal speech sits well below full scale; 8000 RMS reads as 100
	lvl := int(math.Round(rms * 100 / 8000))
	if lvl > 100 {
		lvl = 100
	}
	return lvl
}
