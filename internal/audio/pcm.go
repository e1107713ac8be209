package audio

import "encoding/binary"

// SampleAt returns the S16LE sample starting at byte offset i.
func SampleAt(buf []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[i:]))
}

// PutSample stores v as S16LE at byte offset i.
func PutSample(buf []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(buf[i:], uint16(v))
}

// BytesToInts appends the S16LE samples in buf to dst as ints, the sample
// representation used by go-audio buffers.
func BytesToInts(dst []int, buf []byte) []int {
	for i := 0; i+1 < len(buf); i += 2 {
		dst = append(dst, int(SampleAt(buf, i)))
	}
	return dst
}

// IntsToBytes writes samples as S16LE into dst and returns the number of
// bytes written. Samples outside the 16-bit range are clipped.
func IntsToBytes(dst []byte, samples []int) int {
	n := 0
	for _, s := range samples {
		if n+1 >= len(dst) {
			break
		}
		PutSample(dst, n, int16(min(max(s, -32768), 32767)))
		n += 2
	}
	return n
}
