// Package audio implements the kiosk's capture and playback pipelines:
// PCM conversion and resampling, microphone framing with silence and
// barge-in detection, and a jitter-buffered playback scheduler. The
// wire format is mono PCM16LE, 16 kHz toward the voice session and
// 24 kHz back from it, base64-encoded across the transport.
package audio

import "encoding/base64"

// Int16ToBytes serializes samples as little-endian PCM16.
func Int16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 parses little-endian PCM16. A trailing odd byte is
// dropped; fragments are re-segmented by sample count downstream.
func BytesToInt16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

// EncodeBase64 converts samples to the transport's base64 PCM16LE form.
func EncodeBase64(pcm []int16) string {
	return base64.StdEncoding.EncodeToString(Int16ToBytes(pcm))
}

// DecodeBase64 decodes a transport fragment back to raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Float32ToInt16 quantizes normalized samples, clamping to [-1, 1].
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7fff)
		}
	}
	return out
}

// ResampleLinear converts between sample rates by linear
// interpolation. Equal rates return the input unchanged.
func ResampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float32, outLen)

	pos := 0.0
	for i := 0; i < outLen; i++ {
		p := int(pos)
		frac := float32(pos - float64(p))
		a := in[p]
		b := a
		if p+1 < len(in) {
			b = in[p+1]
		}
		out[i] = a + (b-a)*frac
		pos += ratio
	}
	return out
}

// MeanSquare returns the mean squared sample value, the energy measure
// both silence and barge-in gates compare against squared RMS
// thresholds.
func MeanSquare(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return sum / float64(len(pcm))
}
