package surface

import (
	"reflect"
	"testing"
)

func TestDiffIdenticalFramesIsNil(t *testing.T) {
	prev := patternSurface(64, 64, 5)
	cur := prev.Clone()
	if delta := Diff(prev, cur); delta != nil {
		t.Fatalf("diff of identical frames = %dx%d delta, want nil", delta.Width, delta.Height)
	}
}

func TestDiffXorRoundTrip(t *testing.T) {
	prev := patternSurface(16, 16, 1)
	cur := patternSurface(16, 16, 200)

	delta := Diff(prev, cur)
	if delta == nil {
		t.Fatal("diff of different frames = nil")
	}
	restored := prev.Clone()
	restored.XorRect(0, 0, delta)
	if !restored.Equal(cur) {
		t.Fatal("prev xor delta != cur")
	}
	// Applying the same delta again must walk back to prev.
	restored.XorRect(0, 0, delta)
	if !restored.Equal(prev) {
		t.Fatal("double application did not restore prev")
	}
}

func TestDiffSingleChangedPixel(t *testing.T) {
	prev := New(8, 8)
	cur := New(8, 8)
	cur.SetPixel(3, 4, 0xFF, 0, 0, 0)

	delta := Diff(prev, cur)
	if delta == nil {
		t.Fatal("diff = nil for a changed pixel")
	}
	r, g, b, a := delta.Pixel(3, 4)
	if r != 0xFF || g != 0 || b != 0 || a != 0 {
		t.Fatalf("delta pixel = %d,%d,%d,%d, want 255,0,0,0", r, g, b, a)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x == 3 && y == 4 {
				continue
			}
			if r, g, b, a := delta.Pixel(x, y); r|g|b|a != 0 {
				t.Fatalf("delta (%d,%d) non-zero for unchanged pixel", x, y)
			}
		}
	}
}

func TestDiffSizeMismatchFallsBackToFullFrame(t *testing.T) {
	prev := patternSurface(4, 4, 0)
	cur := patternSurface(6, 4, 0)
	delta := Diff(prev, cur)
	if delta == nil {
		t.Fatal("diff = nil across a resize")
	}
	if !delta.Equal(cur) {
		t.Fatal("resize diff is not the full current frame")
	}
	// The fallback must be a copy, not an alias.
	delta.Pix[0] ^= 0xFF
	if delta.Equal(cur) {
		t.Fatal("resize diff aliases the current frame")
	}
}

func TestDirtyRects(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		marks [][2]int // pixels to dirty
		block int
		want  []Rect
	}{
		{
			name: "clean surface",
			w:    64, h: 64,
			block: 32,
			want:  nil,
		},
		{
			name: "single pixel top left",
			w:    64, h: 64,
			marks: [][2]int{{0, 0}},
			block: 32,
			want:  []Rect{{X: 0, Y: 0, Width: 32, Height: 32}},
		},
		{
			name: "single pixel second block",
			w:    64, h: 64,
			marks: [][2]int{{33, 2}},
			block: 32,
			want:  []Rect{{X: 32, Y: 0, Width: 32, Height: 32}},
		},
		{
			name: "adjacent blocks coalesce",
			w:    64, h: 64,
			marks: [][2]int{{0, 0}, {40, 0}},
			block: 32,
			want:  []Rect{{X: 0, Y: 0, Width: 64, Height: 32}},
		},
		{
			name: "gap splits runs",
			w:    96, h: 32,
			marks: [][2]int{{0, 0}, {70, 0}},
			block: 32,
			want: []Rect{
				{X: 0, Y: 0, Width: 32, Height: 32},
				{X: 64, Y: 0, Width: 32, Height: 32},
			},
		},
		{
			name: "separate rows",
			w:    64, h: 64,
			marks: [][2]int{{0, 0}, {0, 40}},
			block: 32,
			want: []Rect{
				{X: 0, Y: 0, Width: 32, Height: 32},
				{X: 0, Y: 32, Width: 32, Height: 32},
			},
		},
		{
			name: "partial tail block",
			w:    40, h: 40,
			marks: [][2]int{{36, 36}},
			block: 32,
			want:  []Rect{{X: 32, Y: 32, Width: 8, Height: 8}},
		},
		{
			name: "default block size",
			w:    40, h: 40,
			marks: [][2]int{{1, 1}},
			block: 0,
			want:  []Rect{{X: 0, Y: 0, Width: 32, Height: 32}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := New(tt.w, tt.h)
			for _, m := range tt.marks {
				delta.SetPixel(m[0], m[1], 1, 0, 0, 0)
			}
			got := DirtyRects(delta, tt.block)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("DirtyRects = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDirtyRectsFullFrame(t *testing.T) {
	delta := New(64, 64)
	delta.Fill(0, 0, 0, 1)
	want := []Rect{
		{X: 0, Y: 0, Width: 64, Height: 32},
		{X: 0, Y: 32, Width: 64, Height: 32},
	}
	if got := DirtyRects(delta, 32); !reflect.DeepEqual(got, want) {
		t.Fatalf("DirtyRects = %+v, want %+v", got, want)
	}
}

func BenchmarkDiff(b *testing.B) {
	prev := patternSurface(256, 256, 0)
	cur := prev.Clone()
	cur.SetPixel(128, 128, 0xFF, 0xFF, 0xFF, 0xFF)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Diff(prev, cur)
	}
}

func BenchmarkDirtyRects(b *testing.B) {
	delta := New(256, 256)
	delta.SetPixel(10, 10, 1, 0, 0, 0)
	delta.SetPixel(200, 200, 1, 0, 0, 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DirtyRects(delta, 0)
	}
}
