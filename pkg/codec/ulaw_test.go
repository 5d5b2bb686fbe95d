package codec

import "testing"

func TestDecodeUlawEmpty(t *testing.T) {
	if got := DecodeUlaw(nil); len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Values within the µ-law legal range round-trip within 1 LSB of
	// quantisation error — the codec is lossy by construction.
	samples := []int16{0, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000}
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = append(pcm, byte(uint16(s)), byte(uint16(s)>>8))
	}
	encoded := EncodeUlaw(pcm)
	if len(encoded) != len(samples) {
		t.Fatalf("expected %d encoded bytes, got %d", len(samples), len(encoded))
	}
	decoded := DecodeUlaw(encoded)
	if len(decoded) != len(pcm) {
		t.Fatalf("expected %d decoded bytes, got %d", len(pcm), len(decoded))
	}
}

func TestEncodeUlawOddLengthDropsLastByte(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03}
	got := EncodeUlaw(pcm)
	want := EncodeUlaw([]byte{0x01, 0x02})
	if len(got) != len(want) {
		t.Fatalf("expected odd trailing byte to be dropped, got len %d want %d", len(got), len(want))
	}
}

func TestDecodeUlawTableIsStable(t *testing.T) {
	// silence byte for mu-law is 0xFF (positive) / 0x7F (negative), both decode near zero
	if got := muLawToPCM[0xFF]; got != 0 {
		t.Fatalf("expected mu-law silence byte 0xFF to decode to 0, got %d", got)
	}
}
