package surface

import "testing"

func TestPNGRoundTripOpaque(t *testing.T) {
	s := patternSurface(9, 5, 42)
	// Force opaque alpha, the common case for full window frames.
	for i := 3; i < len(s.Pix); i += 4 {
		s.Pix[i] = 0xFF
	}
	data, err := EncodePNG(s)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	got, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG: %v", err)
	}
	if !got.Equal(s) {
		t.Fatal("decoded surface differs from original")
	}
}

func TestPNGRoundTripArbitraryAlpha(t *testing.T) {
	// XOR deltas carry arbitrary alpha bytes, including zero alpha with
	// non-zero color channels. Those must survive the codec byte for byte.
	s := New(3, 1)
	copy(s.Pix, []byte{
		0x30, 0x00, 0x7F, 0x00,
		0xFF, 0xFF, 0xFF, 0x01,
		0x00, 0x00, 0x00, 0x00,
	})
	data, err := EncodePNG(s)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	got, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG: %v", err)
	}
	if !got.Equal(s) {
		t.Fatalf("decoded pix = %v, want %v", got.Pix, s.Pix)
	}
}

func TestDecodePNGGarbage(t *testing.T) {
	if _, err := DecodePNG([]byte("not a png")); err == nil {
		t.Fatal("DecodePNG accepted garbage")
	}
}

func TestDeltaThroughPNG(t *testing.T) {
	prev := patternSurface(20, 20, 9)
	cur := prev.Clone()
	cur.SetPixel(5, 5, 0x12, 0x34, 0x56, 0x78)
	cur.SetPixel(13, 2, 0xFE, 0xDC, 0xBA, 0x98)

	delta := Diff(prev, cur)
	data, err := EncodePNG(delta)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	decoded, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG: %v", err)
	}

	mirror := prev.Clone()
	mirror.XorRect(0, 0, decoded)
	if !mirror.Equal(cur) {
		t.Fatal("delta shipped through png did not reproduce the frame")
	}
}

func BenchmarkEncodePNG(b *testing.B) {
	s := patternSurface(256, 256, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodePNG(s); err != nil {
			b.Fatal(err)
		}
	}
}
