package surface

// DefaultBlockSize is the tile size used when scanning a delta for dirty
// rectangles. 32px tiles keep the scan cheap while still splitting sparse
// updates into small patches.
const DefaultBlockSize = 32

// Diff returns cur XOR prev as a new surface. Identical frames produce an
// all-zero delta, which Diff reports by returning nil so callers can skip
// the update entirely. The surfaces must have the same dimensions; callers
// handle resizes by sending a full frame instead.
func Diff(prev, cur *Surface) *Surface {
	if prev.Width != cur.Width || prev.Height != cur.Height {
		return cur.Clone()
	}
	delta := New(cur.Width, cur.Height)
	dirty := false
	for i, b := range cur.Pix {
		d := prev.Pix[i] ^ b
		delta.Pix[i] = d
		if d != 0 {
			dirty = true
		}
	}
	if !dirty {
		return nil
	}
	return delta
}

// DirtyRects scans a delta surface in blockSize tiles and returns the
// non-zero regions as rectangles. Horizontally adjacent dirty tiles in the
// same tile row coalesce into a single rectangle. A blockSize of zero or
// less selects DefaultBlockSize.
func DirtyRects(delta *Surface, blockSize int) []Rect {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	var rects []Rect
	for by := 0; by < delta.Height; by += blockSize {
		bh := blockSize
		if by+bh > delta.Height {
			bh = delta.Height - by
		}
		runStart := -1
		for bx := 0; bx < delta.Width; bx += blockSize {
			bw := blockSize
			if bx+bw > delta.Width {
				bw = delta.Width - bx
			}
			if blockDirty(delta, bx, by, bw, bh) {
				if runStart < 0 {
					runStart = bx
				}
				continue
			}
			if runStart >= 0 {
				rects = append(rects, Rect{
					X: int32(runStart), Y: int32(by),
					Width: int32(bx - runStart), Height: int32(bh),
				})
				runStart = -1
			}
		}
		if runStart >= 0 {
			rects = append(rects, Rect{
				X: int32(runStart), Y: int32(by),
				Width: int32(delta.Width - runStart), Height: int32(bh),
			})
		}
	}
	return rects
}

func blockDirty(delta *Surface, x, y, w, h int) bool {
	for row := y; row < y+h; row++ {
		off := row*delta.Stride + x*4
		for _, b := range delta.Pix[off : off+w*4] {
			if b != 0 {
				return true
			}
		}
	}
	return false
}
