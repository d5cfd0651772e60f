package audio

import (
	"encoding/binary"
	"math"
)

// Convert returns pcm converted from format from to format to. Only mono and
// stereo sources are supported; anything else is returned unchanged.
// Conversion order: downmix first, then resample (avoids resampling both
// channels when the target is mono).
func Convert(pcm []byte, from, to Format) []byte {
	if from == to || !from.Valid() || !to.Valid() {
		return pcm
	}
	if from.Channels == 2 && to.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	if from.SampleRate != to.SampleRate {
		pcm = ResampleMono16(pcm, from.SampleRate, to.SampleRate)
	}
	return pcm
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// RMS returns the root-mean-square energy of a PCM16 buffer normalised to
// [0, 1]. Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Peak returns the largest absolute sample of a PCM16 buffer normalised to
// [0, 1].
func Peak(pcm []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int32(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return math.Min(float64(peak)/32768, 1)
}

// Float32 returns the samples of a PCM16 buffer as floats in [-1, 1), the
// layout in-process recognisers consume. A trailing odd byte is ignored.
func Float32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}
