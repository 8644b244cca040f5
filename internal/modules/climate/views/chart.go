package views

import (
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	precipitationColor = color.RGBA{B: 255, A: 255}
	temperatureColor   = color.RGBA{R: 255, A: 255}
)

// tickDay anchors month ticks on a day that exists in every month.
const tickDay = 28

// monthTicks places one tick per month on the 28th, labelled "Jan", "Feb", ...
// Axis values are Unix seconds.
type monthTicks struct{}

func (monthTicks) Ticks(min, max float64) []plot.Tick {
	if math.IsNaN(min) || math.IsNaN(max) || max < min {
		return nil
	}
	start := unixTime(min)
	end := unixTime(max)

	t := time.Date(start.Year(), start.Month(), tickDay, 0, 0, 0, 0, time.UTC)
	if t.Before(start) {
		t = t.AddDate(0, 1, 0)
	}
	var ticks []plot.Tick
	for ; !t.After(end); t = t.AddDate(0, 1, 0) {
		ticks = append(ticks, plot.Tick{Value: float64(t.Unix()), Label: t.Format("Jan")})
	}
	return ticks
}

func unixTime(v float64) time.Time {
	return time.Unix(int64(v), 0).UTC()
}

type bar struct {
	x, y float64
}

// monthBars draws fixed-width vertical bars centred on time positions.
// plotter.BarChart positions bars by index, which cannot share a time axis
// with the temperature line.
type monthBars struct {
	bars  []bar
	width float64
	color color.Color
}

func (b *monthBars) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	half := b.width / 2
	for _, br := range b.bars {
		if math.IsNaN(br.y) || math.IsInf(br.y, 0) {
			continue
		}
		x0, x1 := trX(br.x-half), trX(br.x+half)
		y0, y1 := trY(0), trY(br.y)
		poly := []vg.Point{
			{X: x0, Y: y0},
			{X: x0, Y: y1},
			{X: x1, Y: y1},
			{X: x1, Y: y0},
		}
		c.FillPolygon(b.color, c.ClipPolygonXY(poly))
	}
}

func (b *monthBars) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = 0, 0
	for _, br := range b.bars {
		xmin = math.Min(xmin, br.x-b.width/2)
		xmax = math.Max(xmax, br.x+b.width/2)
		ymin = math.Min(ymin, br.y)
		ymax = math.Max(ymax, br.y)
	}
	return xmin, xmax, ymin, ymax
}

// axisRange returns the values at the bottom and top of an axis. Order is
// kept, so bottom > top gives an inverted axis; non-finite bounds become 0
// and an empty range is widened to show an empty chart.
func axisRange(bottom, top float64) (float64, float64) {
	if math.IsNaN(bottom) || math.IsInf(bottom, 0) {
		bottom = 0
	}
	if math.IsNaN(top) || math.IsInf(top, 0) {
		top = 0
	}
	if bottom == top {
		top = bottom + 1
	}
	return bottom, top
}

// setVertical shows [bottom, top] on a, flipping the axis when bottom > top.
func setVertical(a *plot.Axis, bottom, top float64) {
	a.Min, a.Max = math.Min(bottom, top), math.Max(bottom, top)
	if bottom > top {
		a.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	} else {
		a.Scale = plot.LinearScale{}
	}
}

// linearMap maps [fromLo, fromHi] onto [toLo, toHi].
func linearMap(fromLo, fromHi, toLo, toHi float64) func(float64) float64 {
	scale := (toHi - toLo) / (fromHi - fromLo)
	return func(v float64) float64 {
		return toLo + (v-fromLo)*scale
	}
}

// drawRightAxis paints a second vertical axis along the right edge of the
// data area, reusing the left axis' styles. bottom and top are the values at
// the lower and upper edge; bottom > top draws the axis inverted.
func drawRightAxis(c draw.Canvas, p *plot.Plot, data draw.Canvas, bottom, top float64, label string, ticks []plot.Tick) {
	c.StrokeLine2(p.Y.LineStyle, data.Max.X, data.Min.Y, data.Max.X, data.Max.Y)

	tickSty := p.Y.Tick.Label
	tickSty.XAlign = draw.XLeft
	tickSty.YAlign = draw.YCenter

	maxW := vg.Length(0)
	for _, tk := range ticks {
		frac := (tk.Value - bottom) / (top - bottom)
		if frac < 0 || frac > 1 {
			continue
		}
		y := data.Y(frac)
		length := p.Y.Tick.Length
		if tk.IsMinor() {
			length /= 2
		}
		c.StrokeLine2(p.Y.Tick.LineStyle, data.Max.X, y, data.Max.X+length, y)
		if tk.IsMinor() {
			continue
		}
		c.FillText(tickSty, vg.Point{X: data.Max.X + p.Y.Tick.Length + labelGap, Y: y}, tk.Label)
		if w := tickSty.Width(tk.Label); w > maxW {
			maxW = w
		}
	}

	labelSty := p.Y.Label.TextStyle
	labelSty.Rotation = math.Pi / 2
	labelSty.XAlign = draw.XCenter
	labelSty.YAlign = draw.YTop
	x := data.Max.X + p.Y.Tick.Length + labelGap + maxW + labelGap
	c.FillText(labelSty, vg.Point{X: x, Y: (data.Min.Y + data.Max.Y) / 2}, label)
}

// rightAxisWidth is the space reserved for drawRightAxis.
func rightAxisWidth(p *plot.Plot, label string, ticks []plot.Tick) vg.Length {
	maxW := vg.Length(0)
	for _, tk := range ticks {
		if tk.IsMinor() {
			continue
		}
		if w := p.Y.Tick.Label.Width(tk.Label); w > maxW {
			maxW = w
		}
	}
	return p.Y.Tick.Length + labelGap + maxW + labelGap + p.Y.Label.TextStyle.Height(label) + labelGap
}
