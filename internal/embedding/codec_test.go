package embedding

import "testing"

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1, -1, 0.123456, 3.5e-8}
	blob := EncodeVector(v)
	if len(blob) != 4*len(v) {
		t.Fatalf("len(blob) = %d, want %d", len(blob), 4*len(v))
	}

	got, err := DecodeVector(blob)
	if err != nil {
		t.Fatalf("DecodeVector() error = %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestDecodeVector_BadLength(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeVector() should reject a blob that is not a multiple of 4 bytes")
	}
}
