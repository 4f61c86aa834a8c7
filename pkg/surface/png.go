package surface

import (
	"bytes"
	"fmt"
	"image/png"
)

// EncodePNG serializes the surface as a PNG, the payload format carried by
// put-image and delta-image display commands. Encoding goes through the
// NRGBA view so every byte pattern survives, including the arbitrary alpha
// values XOR deltas carry.
func EncodePNG(s *Surface) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.NRGBA()); err != nil {
		return nil, fmt.Errorf("surface: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG parses a PNG payload back into a surface.
func DecodePNG(data []byte) (*Surface, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("surface: decode png: %w", err)
	}
	return FromImage(img), nil
}
