package capture

import (
	"context"
	"errors"
	"time"

	"github.com/go-broadway/broadway/pkg/display"
	"github.com/go-broadway/broadway/pkg/surface"
)

// ErrNotFound is returned when a stored capture doesn't exist.
var ErrNotFound = errors.New("capture: snapshot not found")

// ErrEmptyDisplay is returned when no visible window has content to capture.
var ErrEmptyDisplay = errors.New("capture: no visible window content")

// ErrTooLarge is returned when an encoded capture exceeds a store's limit.
var ErrTooLarge = errors.New("capture: snapshot too large")

// Snapshot is one captured display frame.
type Snapshot struct {
	// ID is the store-assigned identifier. Empty until saved.
	ID string

	// TakenAt is when the capture was composed.
	TakenAt time.Time

	// Width and Height are the composed image dimensions in pixels.
	Width  int
	Height int

	// Windows is the number of windows composed into the image.
	Windows int

	// PNG is the encoded image.
	PNG []byte

	// URL is a direct-access URL for the stored capture, when the store
	// provides one (presigned for S3Store, empty for DiskStore).
	URL string
}

// Store persists encoded display captures.
// Implement this interface to use other storage backends.
type Store interface {
	// Save persists the capture, fills in its ID and returns it.
	Save(ctx context.Context, snap *Snapshot) (id string, err error)

	// Open retrieves a stored capture by id.
	Open(ctx context.Context, id string) (*Snapshot, error)

	// Cleanup removes captures older than maxAge.
	// Call this periodically (e.g., every few minutes).
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// Source provides the window frames and canvas size for a capture.
// *display.Server implements it.
type Source interface {
	Frames() []display.WindowFrame
	ScreenSize() (width, height int32)
}

// Take composes the source's visible windows into one image and encodes it.
// The canvas matches the client viewport when its size is known, otherwise
// the bounding box of the visible windows.
func Take(src Source) (*Snapshot, error) {
	frames := src.Frames()
	w, h := src.ScreenSize()

	img, drawn := Compose(frames, int(w), int(h))
	if drawn == 0 {
		return nil, ErrEmptyDisplay
	}

	png, err := surface.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		TakenAt: time.Now(),
		Width:   img.Width,
		Height:  img.Height,
		Windows: drawn,
		PNG:     png,
	}, nil
}

// Compose flattens visible window content onto a single canvas in stacking
// order, bottom first. A non-positive width or height grows the canvas to
// the bounding box of the visible windows. It returns the canvas and the
// number of windows drawn.
func Compose(frames []display.WindowFrame, width, height int) (*surface.Surface, int) {
	if width <= 0 || height <= 0 {
		width, height = boundingBox(frames)
	}

	canvas := surface.New(width, height)
	drawn := 0
	for _, f := range frames {
		if !f.Visible || f.Content == nil {
			continue
		}
		canvas.DrawRect(f.X, f.Y, f.Content)
		drawn++
	}
	return canvas, drawn
}

// boundingBox returns the extent of the visible content. Windows hanging off
// the left or top edge are clipped at zero, matching what a client shows.
func boundingBox(frames []display.WindowFrame) (int, int) {
	var w, h int
	for _, f := range frames {
		if !f.Visible || f.Content == nil {
			continue
		}
		if right := int(f.X) + int(f.Width); right > w {
			w = right
		}
		if bottom := int(f.Y) + int(f.Height); bottom > h {
			h = bottom
		}
	}
	return w, h
}
