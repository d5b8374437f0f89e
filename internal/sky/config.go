// Package sky implements the infinite scrolling hex background: a fixed-size
// buffer of tile variants that is shifted whenever the accumulated scroll
// offset crosses a whole tile period, with fresh random variants seeded along
// the trailing edge.
package sky

import (
	"errors"
	"fmt"

	"github.com/talgya/hexsky/internal/world"
)

var (
	// ErrInvalidConfig wraps every configuration rejection.
	ErrInvalidConfig = errors.New("invalid sky config")
	// ErrDegeneratePeriod reports a tile size that yields a zero or negative period.
	ErrDegeneratePeriod = errors.New("degenerate tile period")
)

// MaxVariants is the largest variant count a Variant can index.
const MaxVariants = 256

// Config holds the sky buffer parameters. They are fixed per sprite sheet and
// do not change at runtime.
type Config struct {
	Width  int // buffer width in tiles
	Height int // buffer height in tiles

	TileWidth  float64 // tile sprite width in pixels
	TileHeight float64 // tile sprite height in pixels

	Variants int // distinct sprite variants, 1..MaxVariants

	// Speed is the default scroll velocity in hex units per second. Hosts may
	// pass any other speed to Update.
	Speed world.FracHex

	// MaxStep caps the elapsed time accepted by one Update, in seconds.
	// 0 disables the cap.
	MaxStep float64
}

// DefaultConfig returns the sky used by the game: a 40x24 buffer of 48x52
// sprites with 8 variants.
func DefaultConfig() Config {
	return Config{
		Width:      40,
		Height:     24,
		TileWidth:  48,
		TileHeight: 52,
		Variants:   8,
		Speed:      world.FracHex{Q: 0.5, R: 0.2},
		MaxStep:    0.25,
	}
}

// Period returns the pixel distance after which the tiling repeats: one tile
// horizontally, two offset rows (1.5 tile heights) vertically.
func (c Config) Period() world.Point {
	return world.Point{X: c.TileWidth, Y: c.TileHeight * 1.5}
}

// Layout returns the hex layout matching the tile sprites.
func (c Config) Layout() world.Layout {
	return world.Layout{Size: c.TileHeight / 2}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: buffer size %dx%d must be positive", ErrInvalidConfig, c.Width, c.Height)
	}
	if !(c.TileWidth > 0) || !(c.TileHeight > 0) {
		return fmt.Errorf("%w: %w: tile size %gx%g", ErrInvalidConfig, ErrDegeneratePeriod, c.TileWidth, c.TileHeight)
	}
	if c.Variants < 1 || c.Variants > MaxVariants {
		return fmt.Errorf("%w: variant count %d outside 1..%d", ErrInvalidConfig, c.Variants, MaxVariants)
	}
	if c.MaxStep < 0 {
		return fmt.Errorf("%w: negative max step %g", ErrInvalidConfig, c.MaxStep)
	}
	return nil
}
