package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
	"github.com/python-kurs/exercise-4-l3enR/internal/logging"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/aggregate"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/loader"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/views"
	"github.com/python-kurs/exercise-4-l3enR/internal/mqtt"
)

type Renderer interface {
	Render(req types.DiagramRequest) (string, error)
}

// Archive stores monthly aggregates and renders.
type Archive interface {
	SaveMonthly(runID string, year int, table types.MonthlyTable) error
	RecordRender(rec types.RenderRecord) error
}

// Notifier announces rendered diagrams.
type Notifier interface {
	PublishDiagram(evt mqtt.DiagramEvent) error
}

// Result describes one processed station. Rows counts the observations of
// the selected year.
type Result struct {
	Station       string
	RunID         string
	Rows          int
	Months        int
	DiagramPath   string
	ThumbnailPath string
	Table         types.MonthlyTable
}

// Outcome pairs a station with its result or error.
type Outcome struct {
	Station string
	Result  Result
	Err     error
}

type Service struct {
	cfg      config.Config
	renderer Renderer
	archive  Archive
	notifier Notifier
	logger   *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// NewService wires the pipeline. archive and notifier may be nil to skip
// those stages.
func NewService(cfg config.Config, renderer Renderer, archive Archive, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		renderer: renderer,
		archive:  archive,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
	}
}

// Process runs the pipeline for one station. Every error is a
// *types.StageError. A Result is returned alongside archive and publish
// errors, since the diagram was already written by then.
func (s *Service) Process(ctx context.Context, st config.Station) (Result, error) {
	res := Result{Station: st.Name, RunID: s.newRunID()}
	log := logging.ForStation(s.logger, st.Name, res.RunID)

	fail := func(stage string, err error) (Result, error) {
		return res, &types.StageError{Station: st.Name, Stage: stage, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(types.StageLoad, err)
	}

	table, err := loader.Load(st.Path, loader.Options{
		Station:    st.Name,
		DateColumn: s.cfg.DateColumn,
		Columns:    []string{s.cfg.TemperatureColumn, s.cfg.PrecipitationColumn},
		NAValues:   s.cfg.NAValues,
	})
	if err != nil {
		return fail(types.StageLoad, err)
	}
	log.Debug("station loaded", "path", st.Path, "rows", len(table.Rows))

	year := aggregate.FilterYear(table, s.cfg.Year)
	res.Rows = len(year.Rows)
	if res.Rows == 0 {
		return fail(types.StageFilter, fmt.Errorf("no observations in %d: %w", s.cfg.Year, types.ErrEmptyResult))
	}

	monthly, err := aggregate.Monthly(year, s.cfg.TemperatureColumn, s.cfg.PrecipitationColumn)
	if err != nil {
		return fail(types.StageAggregate, err)
	}
	res.Table = monthly
	res.Months = len(monthly.Months)
	log.Debug("station aggregated", "year", s.cfg.Year, "rows", res.Rows, "months", res.Months)

	if err := ctx.Err(); err != nil {
		return fail(types.StageRender, err)
	}
	path, err := s.renderer.Render(types.DiagramRequest{
		Table:    monthly,
		Title:    st.Title,
		Filename: st.Filename,
		TempMin:  s.cfg.TempMin,
		TempMax:  s.cfg.TempMax,
		PrecMin:  s.cfg.PrecMin,
		PrecMax:  s.cfg.PrecMax,
	})
	if err != nil {
		return fail(types.StageRender, err)
	}
	res.DiagramPath = path

	if s.cfg.ThumbnailWidth > 0 {
		thumb, err := views.Thumbnail(path, s.cfg.ThumbnailWidth)
		if err != nil {
			return fail(types.StageThumbnail, err)
		}
		res.ThumbnailPath = thumb
	}

	renderedAt := s.now()

	if s.archive != nil {
		if err := s.archive.SaveMonthly(res.RunID, s.cfg.Year, monthly); err != nil {
			return fail(types.StageArchive, err)
		}
		if err := s.archive.RecordRender(types.RenderRecord{
			RunID:         res.RunID,
			Station:       st.Name,
			Year:          s.cfg.Year,
			Path:          res.DiagramPath,
			ThumbnailPath: res.ThumbnailPath,
			RenderedAt:    renderedAt,
		}); err != nil {
			return fail(types.StageArchive, err)
		}
		log.Debug("station archived", "year", s.cfg.Year)
	}

	if s.notifier != nil {
		if err := s.notifier.PublishDiagram(mqtt.DiagramEvent{
			RunID:      res.RunID,
			Station:    st.Name,
			Year:       s.cfg.Year,
			Path:       res.DiagramPath,
			Thumbnail:  res.ThumbnailPath,
			Months:     mqtt.MonthPoints(monthly.Months),
			RenderedAt: renderedAt,
		}); err != nil {
			return fail(types.StagePublish, err)
		}
	}

	log.Info("climate diagram written",
		"path", res.DiagramPath,
		"thumbnail", res.ThumbnailPath,
		"months", res.Months,
	)
	return res, nil
}

// ProcessAll processes stations with at most cfg.MaxParallel running at
// once. Outcomes keep the order of stations; one station failing never
// affects another. Stations not started when ctx is done fail with the
// context error.
func (s *Service) ProcessAll(ctx context.Context, stations []config.Station) []Outcome {
	outcomes := make([]Outcome, len(stations))

	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.MaxParallel))
	for i, st := range stations {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{
				Station: st.Name,
				Err:     &types.StageError{Station: st.Name, Stage: types.StageLoad, Err: err},
			}
			continue
		}
		g.Go(func() error {
			res, err := s.Process(ctx, st)
			outcomes[i] = Outcome{Station: st.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
