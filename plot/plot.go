// Package plot draws the figures of the experiments as PNG files.
package plot

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Dir is the subdirectory of a run directory where figures are written.
const Dir = "plots"

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorRed,
	chart.ColorGreen,
	chart.ColorOrange,
	chart.ColorBlack,
	{R: 128, G: 0, B: 128, A: 255},
}

// Kind is how a series is drawn.
type Kind int

const (
	KindLine Kind = iota
	KindScatter
	KindErrorBars
	// KindReference is a dashed line, such as a horizontal threshold.
	KindReference
)

// Series is a named sequence of points.
type Series struct {
	Name string
	Kind Kind
	X    []float64
	Y    []float64
	// Err is the half length of error bars, for KindErrorBars.
	Err []float64
}

// Figure is a chart with one or more series.
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	// LogY draws log10 of the y values, labelling ticks with powers of ten.
	LogY   bool
	Series []Series
}

// Scatter returns a series of unconnected points.
func Scatter(name string, x, y []float64) Series {
	return Series{Name: name, Kind: KindScatter, X: x, Y: y}
}

// Lines returns a series of connected points.
func Lines(name string, x, y []float64) Series {
	return Series{Name: name, Kind: KindLine, X: x, Y: y}
}

// ErrorBars returns a series of points with vertical error bars.
func ErrorBars(name string, x, y, err []float64) Series {
	return Series{Name: name, Kind: KindErrorBars, X: x, Y: y, Err: err}
}

// HLine returns a dashed horizontal line at y spanning [x0, x1].
func HLine(name string, y, x0, x1 float64) Series {
	return Series{Name: name, Kind: KindReference, X: []float64{x0, x1}, Y: []float64{y, y}}
}

// SemilogY returns a figure whose y axis is logarithmic.
func SemilogY(title, xlabel, ylabel string, series ...Series) Figure {
	return Figure{Title: title, XLabel: xlabel, YLabel: ylabel, LogY: true, Series: series}
}

func (s Series) validate() error {
	if len(s.X) == 0 {
		return errors.Errorf("empty series %q", s.Name)
	}
	if len(s.X) != len(s.Y) {
		return errors.Errorf("series %q x %d y %d", s.Name, len(s.X), len(s.Y))
	}
	if s.Kind == KindErrorBars && len(s.Err) != len(s.Y) {
		return errors.Errorf("series %q y %d err %d", s.Name, len(s.Y), len(s.Err))
	}
	return nil
}

// Save renders f to dir/plots/<name>.png and returns the path.
func Save(dir, name string, f Figure) (string, error) {
	b, err := Render(f)
	if err != nil {
		return "", errors.Wrap(err, name)
	}
	plotDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(plotDir, 0755); err != nil {
		return "", errors.Wrap(err, "")
	}
	fpath := filepath.Join(plotDir, name+".png")
	if err := os.WriteFile(fpath, b, 0644); err != nil {
		return "", errors.Wrap(err, "")
	}
	return fpath, nil
}

// Render draws f as a PNG image.
func Render(f Figure) ([]byte, error) {
	if len(f.Series) == 0 {
		return nil, errors.Errorf("no series")
	}
	series := make([]chart.Series, 0, len(f.Series))
	xs, ys := make([]float64, 0), make([]float64, 0)
	for i, s := range f.Series {
		if err := s.validate(); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if f.LogY {
			var err error
			if s, err = logSeries(s); err != nil {
				return nil, errors.Wrap(err, "")
			}
		}
		xs = append(xs, s.X...)
		ys = append(ys, s.Y...)
		for j, e := range s.Err {
			ys = append(ys, s.Y[j]-e, s.Y[j]+e)
		}
		series = append(series, chartSeries(s, palette[i%len(palette)]))
	}

	graph := chart.Chart{
		Title:  f.Title,
		Width:  800,
		Height: 500,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  f.XLabel,
			Style: chart.Style{FontSize: 10.0},
			Range: paddedRange(xs),
		},
		YAxis: chart.YAxis{
			Name:  f.YLabel,
			Style: chart.Style{FontSize: 10.0},
			Range: paddedRange(ys),
		},
		Series: series,
	}
	if f.LogY {
		graph.YAxis.Ticks = powerTicks(ys)
	}
	if len(f.Series) > 1 || f.Series[0].Name != "" {
		graph.Elements = []chart.Renderable{chart.LegendThin(&graph)}
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return buffer.Bytes(), nil
}

func chartSeries(s Series, color drawing.Color) chart.Series {
	switch s.Kind {
	case KindScatter:
		return chart.ContinuousSeries{Name: s.Name, XValues: s.X, YValues: s.Y, Style: chart.Style{
			StrokeWidth: chart.Disabled, DotWidth: 3, DotColor: color,
		}}
	case KindErrorBars:
		return errorBarSeries{name: s.Name, x: s.X, y: s.Y, err: s.Err, style: chart.Style{
			StrokeColor: color, StrokeWidth: 1.5, DotColor: color, DotWidth: 3,
		}}
	case KindReference:
		return chart.ContinuousSeries{Name: s.Name, XValues: s.X, YValues: s.Y, Style: chart.Style{
			StrokeColor: color, StrokeWidth: 1.5, StrokeDashArray: []float64{5, 5},
		}}
	}
	return chart.ContinuousSeries{Name: s.Name, XValues: s.X, YValues: s.Y, Style: chart.Style{
		StrokeColor: color, StrokeWidth: 2,
	}}
}

// paddedRange returns nil to let the chart pick a range, unless all values are equal, which the chart rejects.
func paddedRange(vs []float64) chart.Range {
	lo, hi := bounds(vs)
	if hi > lo {
		return nil
	}
	pad := math.Max(math.Abs(lo)*0.1, 1)
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func bounds(vs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func logSeries(s Series) (Series, error) {
	out := Series{Name: s.Name, Kind: s.Kind, X: s.X, Y: make([]float64, len(s.Y))}
	for i, y := range s.Y {
		if y <= 0 {
			return Series{}, errors.Errorf("series %q non positive %f at %d", s.Name, y, i)
		}
		out.Y[i] = math.Log10(y)
	}
	if s.Err != nil {
		// Relative errors become absolute errors of the logarithm.
		out.Err = make([]float64, len(s.Err))
		for i, e := range s.Err {
			out.Err[i] = e / (s.Y[i] * math.Ln10)
		}
	}
	return out, nil
}

// powerTicks labels the integer powers of ten spanning logs.
func powerTicks(logs []float64) []chart.Tick {
	lo, hi := bounds(logs)
	lo, hi = math.Floor(lo), math.Ceil(hi)
	if hi == lo {
		hi++
	}
	step := math.Max(1, math.Ceil((hi-lo)/10))
	ticks := make([]chart.Tick, 0)
	for k := lo; k <= hi; k += step {
		ticks = append(ticks, chart.Tick{Value: k, Label: fmt.Sprintf("1e%d", int(k))})
	}
	return ticks
}

// errorBarSeries draws points connected by lines with vertical error bars.
type errorBarSeries struct {
	name  string
	style chart.Style
	x     []float64
	y     []float64
	err   []float64
}

func (s errorBarSeries) GetName() string { return s.name }
func (s errorBarSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (s errorBarSeries) GetStyle() chart.Style { return s.style }
func (s errorBarSeries) Len() int { return len(s.x) }
func (s errorBarSeries) GetValues(i int) (float64, float64) { return s.x[i], s.y[i] }

func (s errorBarSeries) GetBoundedValues(i int) (float64, float64, float64) {
	return s.x[i], s.y[i] - s.err[i], s.y[i] + s.err[i]
}

func (s errorBarSeries) Validate() error {
	return Series{Name: s.name, Kind: KindErrorBars, X: s.x, Y: s.y, Err: s.err}.validate()
}

func (s errorBarSeries) Render(r chart.Renderer, canvasBox chart.Box, xrange, yrange chart.Range, defaults chart.Style) {
	style := s.style.InheritFrom(defaults)
	chart.Draw.LineSeries(r, canvasBox, xrange, yrange, style, s)

	const capHalfWidth = 4
	style.GetStrokeOptions().WriteDrawingOptionsToRenderer(r)
	for i := range s.x {
		x := canvasBox.Left + xrange.Translate(s.x[i])
		y0 := canvasBox.Bottom - yrange.Translate(s.y[i]-s.err[i])
		y1 := canvasBox.Bottom - yrange.Translate(s.y[i]+s.err[i])
		r.MoveTo(x, y0)
		r.LineTo(x, y1)
		r.MoveTo(x-capHalfWidth, y0)
		r.LineTo(x+capHalfWidth, y0)
		r.MoveTo(x-capHalfWidth, y1)
		r.LineTo(x+capHalfWidth, y1)
		r.Stroke()
	}
}
