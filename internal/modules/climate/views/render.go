// Package views renders climate diagrams: monthly precipitation as bars on
// the left axis and monthly mean temperature as a line on the right axis.
package views

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

const (
	PrecipitationLabel = "Precipitation in mm"
	TemperatureLabel   = "Temperature in °C"

	DefaultBarWidth = 20 * 24 * time.Hour

	figureWidth  = 10 * vg.Inch
	figureHeight = 8 * vg.Inch
	figureDPI    = 96
	fontSize     = 16

	labelGap = vg.Length(4)
	// xPadding keeps the first and last bar off the plot frame.
	xPadding = 5 * 24 * time.Hour
)

type Renderer struct {
	outputDir string
	barWidth  time.Duration
	logger    *slog.Logger
}

// NewRenderer returns a renderer writing into outputDir. A non-positive
// barWidth uses DefaultBarWidth.
func NewRenderer(outputDir string, barWidth time.Duration, logger *slog.Logger) *Renderer {
	if barWidth <= 0 {
		barWidth = DefaultBarWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{outputDir: outputDir, barWidth: barWidth, logger: logger}
}

// Render draws req and writes it as PNG to <outputDir>/<req.Filename>,
// creating the directory if needed. It returns the written path.
// Bounds are not validated: values outside them are clipped, a min above its
// max flips that axis and equal bounds give an empty chart.
func (r *Renderer) Render(req types.DiagramRequest) (string, error) {
	c, err := r.draw(req)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w: %v", r.outputDir, types.ErrIO, err)
	}
	path := filepath.Join(r.outputDir, req.Filename)
	if err := writePNG(c, path); err != nil {
		return "", err
	}

	r.logger.Debug("diagram written",
		"station", req.Table.Station,
		"path", path,
		"months", len(req.Table.Months),
	)
	return path, nil
}

func (r *Renderer) draw(req types.DiagramRequest) (*vgimg.Canvas, error) {
	p := plot.New()
	styleFonts(p)

	p.Title.Text = req.Title
	p.Y.Label.Text = PrecipitationLabel
	p.X.Tick.Marker = monthTicks{}

	barWidth := r.barWidth.Seconds()
	bars := &monthBars{width: barWidth, color: precipitationColor}
	for _, m := range req.Table.Months {
		bars.bars = append(bars.bars, bar{x: float64(m.Month.Unix()), y: m.Precipitation})
	}
	p.Add(bars)

	precBottom, precTop := axisRange(req.PrecMin, req.PrecMax)
	tempBottom, tempTop := axisRange(req.TempMin, req.TempMax)
	toPrec := linearMap(tempBottom, tempTop, precBottom, precTop)

	lines, err := temperatureLines(req.Table.Months, toPrec)
	if err != nil {
		return nil, fmt.Errorf("temperature line: %w", err)
	}
	for _, l := range lines {
		p.Add(l)
	}

	// Fixed bounds; set after Add, which widens axes to the data.
	setVertical(&p.Y, precBottom, precTop)
	if len(req.Table.Months) > 0 {
		pad := xPadding.Seconds()
		p.X.Min = float64(req.Table.Months[0].Month.Unix()) - barWidth/2 - pad
		p.X.Max = float64(req.Table.Months[len(req.Table.Months)-1].Month.Unix()) + barWidth/2 + pad
	} else {
		p.X.Min, p.X.Max = 0, 1
	}

	tempTicks := plot.DefaultTicks{}.Ticks(math.Min(tempBottom, tempTop), math.Max(tempBottom, tempTop))

	c := vgimg.NewWith(vgimg.UseWH(figureWidth, figureHeight), vgimg.UseDPI(figureDPI))
	dc := draw.New(c)
	area := draw.Crop(dc, 0, -rightAxisWidth(p, TemperatureLabel, tempTicks), 0, 0)
	p.Draw(area)
	drawRightAxis(dc, p, p.DataCanvas(area), tempBottom, tempTop, TemperatureLabel, tempTicks)

	return c, nil
}

// temperatureLines returns one line per run of consecutive months that have
// a temperature; a missing month breaks the line.
func temperatureLines(months []types.MonthlyAggregate, toPrec func(float64) float64) ([]*plotter.Line, error) {
	var (
		lines []*plotter.Line
		run   plotter.XYs
	)
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		l, err := plotter.NewLine(run)
		if err != nil {
			return err
		}
		l.LineStyle.Color = temperatureColor
		l.LineStyle.Width = vg.Points(1.5)
		lines = append(lines, l)
		run = nil
		return nil
	}

	for _, m := range months {
		if m.Temperature == nil {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		y := toPrec(*m.Temperature)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		run = append(run, plotter.XY{X: float64(m.Month.Unix()), Y: y})
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return lines, nil
}

func styleFonts(p *plot.Plot) {
	size := vg.Points(fontSize)
	p.Title.TextStyle.Font.Size = size
	p.X.Label.TextStyle.Font.Size = size
	p.Y.Label.TextStyle.Font.Size = size
	p.X.Tick.Label.Font.Size = size
	p.Y.Tick.Label.Font.Size = size
}

// writePNG encodes c next to path and renames it into place, so a failed
// render never leaves a truncated diagram behind.
func writePNG(c *vgimg.Canvas, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".diagram-*.png")
	if err != nil {
		return fmt.Errorf("create %s: %w: %v", path, types.ErrIO, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("encode %s: %w: %v", path, types.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w: %v", path, types.ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w: %v", path, types.ErrIO, err)
	}
	return nil
}
