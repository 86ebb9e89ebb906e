// Package plot draws measurement tables on the terminal: scatter plots,
// source stamps with radial profiles, and aligned column listings.
package plot

// Config controls terminal rendering.
type Config struct {
	// Width and Height are the plot area in character cells.
	Width  int
	Height int
	// UseAscii restricts output to 7-bit glyphs.
	UseAscii bool
	// Color enables 24-bit color ramps.
	Color bool
}

// DefaultConfig returns a 72x24 Unicode canvas with color enabled.
func DefaultConfig() *Config {
	return &Config{
		Width:  72,
		Height: 24,
		Color:  true,
	}
}

func (c *Config) normalized() *Config {
	if c == nil {
		return DefaultConfig()
	}
	out := *c
	if out.Width < 16 {
		out.Width = 16
	}
	if out.Height < 6 {
		out.Height = 6
	}
	return &out
}

type glyphs struct {
	density []rune // by point count: 1, 2-3, 4-7, 8+
	shades  []rune // dark to light intensity ramp
	vline   rune
	hline   rune
	corner  rune
	overlap rune
	masked  rune
}

var (
	unicodeGlyphs = glyphs{
		density: []rune{'·', '∙', '●', '◉'},
		shades:  []rune{' ', '░', '▒', '▓', '█'},
		vline:   '│',
		hline:   '─',
		corner:  '└',
		overlap: '✚',
		masked:  '×',
	}
	asciiGlyphs = glyphs{
		density: []rune{'.', 'o', 'O', '@'},
		shades:  []rune{' ', '.', ':', '-', '=', '+', '*', '#', '%', '@'},
		vline:   '|',
		hline:   '-',
		corner:  '+',
		overlap: '&',
		masked:  'x',
	}
)

func (c *Config) glyphs() glyphs {
	if c.UseAscii {
		return asciiGlyphs
	}
	return unicodeGlyphs
}
