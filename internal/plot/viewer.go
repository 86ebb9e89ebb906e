package plot

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/measure"
	"github.com/dbsmedya/shapecat/internal/types"
)

// Viewer shows one measured source: its stored fit values, data, model and
// residual shade maps, and a radial profile of data against model.
type Viewer struct {
	fitter *measure.Fitter
	cfg    *Config
}

// NewViewer returns a viewer drawing models with f.
func NewViewer(f *measure.Fitter, cfg *Config) (*Viewer, error) {
	if f == nil {
		return nil, errors.New("fitter is nil")
	}
	return &Viewer{fitter: f, cfg: cfg.normalized()}, nil
}

// Render writes the view of rec, measured from src.
func (v *Viewer) Render(w io.Writer, rec catalog.Record, src types.Source) error {
	if rec.ID != src.ID {
		return fmt.Errorf("record id %d does not match source id %d", rec.ID, src.ID)
	}
	writeFields(w, [][2]string{
		{"dataset", fmt.Sprint(rec.Dataset)},
		{"id", fmt.Sprint(rec.ID)},
		{"status", measure.StatusString(rec.Status)},
		{"position", fmt.Sprintf("(%.2f, %.2f)", rec.X, rec.Y)},
		{"flux", fmt.Sprintf("%.4g ± %.2g", rec.Flux, rec.FluxErr)},
		{"psf_flux", fmt.Sprintf("%.4g ± %.2g", rec.PsfFlux, rec.PsfFluxErr)},
		{"mag / psf_mag", fmt.Sprintf("%.3f / %.3f", catalog.Magnitude(rec.Flux), catalog.Magnitude(rec.PsfFlux))},
		{"e1, e2", fmt.Sprintf("%.3f, %.3f", rec.E1, rec.E2)},
		{"r", fmt.Sprintf("%.3f", rec.R)},
		{"coeff", formatFloats(rec.Coeff)},
	})
	if !rec.Valid() {
		_, err := fmt.Fprintln(w, "\nno model: the fit failed")
		return err
	}

	st, err := v.fitter.Stamp(src, rec.Result())
	if err != nil {
		return err
	}
	// The catalog does not store component scales; the model uses the fitter's.
	if _, err := fmt.Fprintf(w, "\nmodel drawn with the configured components %s\n",
		formatFloats(v.fitter.Config().Components)); err != nil {
		return err
	}

	panel := max((v.cfg.Width-6)/3, 4)
	factor := (max(st.Width, st.Height) + panel - 1) / panel
	data := downsample(st, st.Data, factor)
	model := downsample(st, st.Model, factor)
	resid := downsample(st, st.Residual, factor)
	used := downsampleUsed(st, factor)

	scale := newBounds()
	for _, plane := range [][]float64{data.values, model.values} {
		for _, x := range plane {
			if finite(x) {
				scale.add(x)
			}
		}
	}
	scale = scale.padded()
	absMax := 0.0
	for _, x := range resid.values {
		if finite(x) {
			absMax = math.Max(absMax, math.Abs(x))
		}
	}

	g := v.cfg.glyphs()
	shade := func(t float64) rune {
		t = math.Max(0, math.Min(1, t))
		return g.shades[int(math.Round(t*float64(len(g.shades)-1)))]
	}

	fmt.Fprintf(w, "\nstamp %dx%d at (%d, %d)", st.Width, st.Height, st.X0, st.Y0)
	if factor > 1 {
		fmt.Fprintf(w, ", binned %dx%d", factor, factor)
	}
	fmt.Fprintln(w)

	cols := data.width
	titles := []string{center("data", cols), center("model", cols), center("residual", cols)}
	for i := range titles {
		titles[i] = runewidth.FillRight(titles[i], cols)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(titles, "   "), " "))

	for j := 0; j < data.height; j++ {
		var line strings.Builder
		for i := 0; i < cols; i++ {
			line.WriteRune(pixelGlyph(data.at(i, j), used[j*cols+i], scale.frac(data.at(i, j)), g, shade))
		}
		line.WriteString("   ")
		for i := 0; i < cols; i++ {
			line.WriteRune(pixelGlyph(model.at(i, j), true, scale.frac(model.at(i, j)), g, shade))
		}
		line.WriteString("   ")
		for i := 0; i < cols; i++ {
			r := resid.at(i, j)
			frac := 0.0
			if absMax > 0 {
				frac = math.Abs(r) / absMax
			}
			line.WriteString(signed(v.cfg.Color, r, string(pixelGlyph(r, used[j*cols+i], frac, g, shade))))
		}
		fmt.Fprintln(w, line.String())
	}

	prof := radialProfile(st)
	sc := &Scatter{
		Title:  "radial profile",
		XLabel: "radius [pixels]",
		YLabel: "mean value",
		Series: []Series{
			{Name: "data", X: prof.radius, Y: prof.data, Marker: 'o'},
			{Name: "model", X: prof.radius, Y: prof.model, Marker: '*'},
		},
		Config: &Config{Width: v.cfg.Width, Height: max(v.cfg.Height/2, 6), UseAscii: v.cfg.UseAscii},
	}
	fig, err := sc.Render()
	if err != nil {
		return fmt.Errorf("radial profile: %w", err)
	}
	_, err = fmt.Fprint(w, "\n", fig.Text)
	return err
}

func pixelGlyph(v float64, used bool, frac float64, g glyphs, shade func(float64) rune) rune {
	switch {
	case !finite(v):
		return ' '
	case !used:
		return g.masked
	default:
		return shade(frac)
	}
}

type plane struct {
	width, height int
	values        []float64
}

func (p plane) at(i, j int) float64 {
	return p.values[j*p.width+i]
}

// downsample averages factor x factor blocks, ignoring non-finite pixels.
func downsample(st *measure.Stamp, values []float64, factor int) plane {
	w := (st.Width + factor - 1) / factor
	h := (st.Height + factor - 1) / factor
	out := plane{width: w, height: h, values: make([]float64, w*h)}
	for bj := 0; bj < h; bj++ {
		for bi := 0; bi < w; bi++ {
			sum, n := 0.0, 0
			for j := bj * factor; j < min((bj+1)*factor, st.Height); j++ {
				for i := bi * factor; i < min((bi+1)*factor, st.Width); i++ {
					if x := values[st.At(i, j)]; finite(x) {
						sum += x
						n++
					}
				}
			}
			if n == 0 {
				out.values[bj*w+bi] = math.NaN()
				continue
			}
			out.values[bj*w+bi] = sum / float64(n)
		}
	}
	return out
}

// downsampleUsed marks a block used when any of its pixels entered the fit.
func downsampleUsed(st *measure.Stamp, factor int) []bool {
	w := (st.Width + factor - 1) / factor
	h := (st.Height + factor - 1) / factor
	out := make([]bool, w*h)
	for j := 0; j < st.Height; j++ {
		for i := 0; i < st.Width; i++ {
			if st.Used[st.At(i, j)] {
				out[(j/factor)*w+i/factor] = true
			}
		}
	}
	return out
}

type profile struct {
	radius, data, model []float64
}

// radialProfile averages used pixels in unit-width annuli around the source center.
func radialProfile(st *measure.Stamp) profile {
	cx, cy := st.CenterX-float64(st.X0), st.CenterY-float64(st.Y0)
	nbins := int(math.Ceil(math.Hypot(float64(st.Width), float64(st.Height))/2)) + 1
	dsum := make([]float64, nbins)
	msum := make([]float64, nbins)
	count := make([]int, nbins)
	for j := 0; j < st.Height; j++ {
		for i := 0; i < st.Width; i++ {
			o := st.At(i, j)
			if !st.Used[o] {
				continue
			}
			b := int(math.Hypot(float64(i)-cx, float64(j)-cy))
			if b >= nbins {
				continue
			}
			dsum[b] += st.Data[o]
			msum[b] += st.Model[o]
			count[b]++
		}
	}

	var p profile
	for b := range count {
		if count[b] == 0 {
			continue
		}
		p.radius = append(p.radius, float64(b)+0.5)
		p.data = append(p.data, dsum[b]/float64(count[b]))
		p.model = append(p.model, msum[b]/float64(count[b]))
	}
	return p
}

func writeFields(w io.Writer, fields [][2]string) {
	width := 0
	for _, f := range fields {
		width = max(width, runewidth.StringWidth(f[0]))
	}
	for _, f := range fields {
		fmt.Fprintf(w, "%s  %s\n", runewidth.FillRight(f[0], width), f[1])
	}
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, x := range values {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
