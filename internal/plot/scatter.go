package plot

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ErrNoPoints is returned when no series has a finite point to draw.
var ErrNoPoints = errors.New("no finite points to plot")

// Series is one set of points. C, when set, colors each point on the shared ramp.
type Series struct {
	Name   string
	X      []float64
	Y      []float64
	C      []float64
	Marker rune // 0 draws density glyphs
}

// Scatter is a terminal scatter plot.
type Scatter struct {
	Title  string
	XLabel string
	YLabel string
	CLabel string
	Series []Series
	Config *Config
}

// Figure is a rendered plot.
type Figure struct {
	Text    string
	Plotted int
	Skipped int
}

func (f *Figure) String() string {
	return f.Text
}

type bounds struct {
	min, max float64
}

func newBounds() bounds {
	return bounds{min: math.Inf(1), max: math.Inf(-1)}
}

func (b *bounds) add(v float64) {
	b.min = math.Min(b.min, v)
	b.max = math.Max(b.max, v)
}

func (b bounds) valid() bool {
	return b.min <= b.max
}

// padded widens a degenerate range so points land mid-axis.
func (b bounds) padded() bounds {
	if b.max > b.min {
		return b
	}
	return bounds{min: b.min - 0.5, max: b.max + 0.5}
}

func (b bounds) frac(v float64) float64 {
	if b.max == b.min {
		return 0.5
	}
	return (v - b.min) / (b.max - b.min)
}

type cell struct {
	count  int
	series int // -1 when several series share the cell
	csum   float64
	cn     int
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Render draws the plot. Points with a non-finite coordinate are skipped.
func (s *Scatter) Render() (*Figure, error) {
	cfg := s.Config.normalized()
	g := cfg.glyphs()
	w, h := cfg.Width, cfg.Height

	xb, yb, cb := newBounds(), newBounds(), newBounds()
	fig := &Figure{}
	for si, ser := range s.Series {
		if len(ser.X) != len(ser.Y) {
			return nil, fmt.Errorf("series %d (%s): %d x values but %d y values", si, ser.Name, len(ser.X), len(ser.Y))
		}
		if ser.C != nil && len(ser.C) != len(ser.X) {
			return nil, fmt.Errorf("series %d (%s): %d color values for %d points", si, ser.Name, len(ser.C), len(ser.X))
		}
		for i := range ser.X {
			if !finite(ser.X[i]) || !finite(ser.Y[i]) {
				fig.Skipped++
				continue
			}
			xb.add(ser.X[i])
			yb.add(ser.Y[i])
			if ser.C != nil && finite(ser.C[i]) {
				cb.add(ser.C[i])
			}
			fig.Plotted++
		}
	}
	if fig.Plotted == 0 {
		return nil, ErrNoPoints
	}
	xb, yb = xb.padded(), yb.padded()

	grid := make([]cell, w*h)
	for i := range grid {
		grid[i].series = -2
	}
	for si, ser := range s.Series {
		for i := range ser.X {
			if !finite(ser.X[i]) || !finite(ser.Y[i]) {
				continue
			}
			col := int(math.Round(xb.frac(ser.X[i]) * float64(w-1)))
			row := h - 1 - int(math.Round(yb.frac(ser.Y[i])*float64(h-1)))
			c := &grid[row*w+col]
			c.count++
			switch c.series {
			case -2:
				c.series = si
			case si:
			default:
				c.series = -1
			}
			if ser.C != nil && finite(ser.C[i]) {
				c.csum += ser.C[i]
				c.cn++
			}
		}
	}

	yTicks := map[int]string{
		0:     formatTick(yb.max),
		h / 2: formatTick(yb.min + (yb.max-yb.min)*float64(h-1-h/2)/float64(h-1)),
		h - 1: formatTick(yb.min),
	}
	labelWidth := 0
	for _, t := range yTicks {
		labelWidth = max(labelWidth, runewidth.StringWidth(t))
	}

	var b strings.Builder
	margin := labelWidth + 1
	if s.Title != "" {
		b.WriteString(center(s.Title, margin+1+w))
		b.WriteByte('\n')
	}
	if s.YLabel != "" {
		b.WriteString(strings.Repeat(" ", margin))
		b.WriteString(s.YLabel)
		b.WriteByte('\n')
	}

	colored := cfg.Color && cb.valid()
	cbp := cb.padded()
	for row := 0; row < h; row++ {
		b.WriteString(runewidth.FillLeft(yTicks[row], labelWidth))
		b.WriteByte(' ')
		b.WriteRune(g.vline)
		for col := 0; col < w; col++ {
			c := grid[row*w+col]
			if c.count == 0 {
				b.WriteByte(' ')
				continue
			}
			glyph := string(cellGlyph(c, s.Series, g))
			if colored && c.cn > 0 {
				glyph = paint(true, cbp.frac(c.csum/float64(c.cn)), glyph)
			}
			b.WriteString(glyph)
		}
		b.WriteByte('\n')
	}

	b.WriteString(strings.Repeat(" ", margin))
	b.WriteRune(g.corner)
	b.WriteString(strings.Repeat(string(g.hline), w))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat(" ", margin+1))
	b.WriteString(xTickLine(w, formatTick(xb.min), formatTick((xb.min+xb.max)/2), formatTick(xb.max)))
	b.WriteByte('\n')
	if s.XLabel != "" {
		b.WriteString(strings.Repeat(" ", margin+1))
		b.WriteString(center(s.XLabel, w))
		b.WriteByte('\n')
	}

	if legend := s.legend(cfg, g, cb); legend != "" {
		b.WriteString(strings.Repeat(" ", margin+1))
		b.WriteString(legend)
		b.WriteByte('\n')
	}

	fig.Text = b.String()
	return fig, nil
}

func cellGlyph(c cell, series []Series, g glyphs) rune {
	if c.series == -1 {
		return g.overlap
	}
	if m := series[c.series].Marker; m != 0 {
		return m
	}
	switch {
	case c.count >= 8:
		return g.density[3]
	case c.count >= 4:
		return g.density[2]
	case c.count >= 2:
		return g.density[1]
	default:
		return g.density[0]
	}
}

func (s *Scatter) legend(cfg *Config, g glyphs, cb bounds) string {
	var parts []string
	if len(s.Series) > 1 {
		for _, ser := range s.Series {
			m := ser.Marker
			if m == 0 {
				m = g.density[0]
			}
			parts = append(parts, fmt.Sprintf("%c %s", m, ser.Name))
		}
	}
	if cb.valid() && cfg.Color {
		label := s.CLabel
		if label == "" {
			label = "c"
		}
		steps := len(g.shades) - 1
		var bar strings.Builder
		for i := 1; i <= steps; i++ {
			t := float64(i-1) / float64(max(steps-1, 1))
			bar.WriteString(paint(true, t, string(g.shades[len(g.shades)-1])))
		}
		parts = append(parts, fmt.Sprintf("%s %s %s %s", label, formatTick(cb.min), bar.String(), formatTick(cb.max)))
	}
	return strings.Join(parts, "   ")
}

func formatTick(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

func center(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return runewidth.Truncate(s, width, "…")
	}
	left := (width - sw) / 2
	return strings.Repeat(" ", left) + s
}

// xTickLine places lo at the left edge, mid in the center and hi at the right edge.
func xTickLine(width int, lo, mid, hi string) string {
	line := []rune(strings.Repeat(" ", width))
	put := func(at int, s string) {
		for i, r := range []rune(s) {
			if at+i >= 0 && at+i < width {
				line[at+i] = r
			}
		}
	}
	put(0, lo)
	put(width/2-runewidth.StringWidth(mid)/2, mid)
	put(width-runewidth.StringWidth(hi), hi)
	return strings.TrimRight(string(line), " ")
}
