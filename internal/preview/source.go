package preview

import (
	"context"
	"errors"
	"image"
)

// ErrNoFrame is returned by a Source when no frame was ready in time.
// Callers should simply ask again.
var ErrNoFrame = errors.New("no frame available")

// Source produces preview frames.
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}
