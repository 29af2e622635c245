package audio

import "testing"

func TestEncodePCM16RoundTrips(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	pcm := EncodePCM16(samples)
	if len(pcm) != len(samples)*2 {
		t.Fatalf("len(pcm) = %d, want %d", len(pcm), len(samples)*2)
	}

	decoded := DecodePCM16(pcm)
	for i, want := range samples {
		if diff := decoded[i] - want; diff > 0.001 || diff < -0.001 {
			t.Errorf("sample %d = %v, want ~%v", i, decoded[i], want)
		}
	}
}

func TestEncodePCM16ClampsOutOfRangeSamples(t *testing.T) {
	pcm := EncodePCM16([]float32{2.0, -2.0})
	decoded := DecodePCM16(pcm)
	if decoded[0] < 0.99 {
		t.Errorf("sample 0 = %v, want clamped to ~1.0", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("sample 1 = %v, want clamped to ~-1.0", decoded[1])
	}
}
