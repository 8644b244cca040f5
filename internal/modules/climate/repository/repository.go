package repository

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/get-station-id-by-name.sql
var getStationIDByNameSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/delete-monthly.sql
var deleteMonthlySQL string

//go:embed sql/insert-monthly.sql
var insertMonthlySQL string

//go:embed sql/get-monthly.sql
var getMonthlySQL string

//go:embed sql/insert-render.sql
var insertRenderSQL string

//go:embed sql/get-renders.sql
var getRendersSQL string

const (
	monthLayout      = "2006-01-02"
	// Fixed width, so text order in SQLite is time order.
	renderedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type ArchiveRepository interface {
	SaveMonthly(runID string, year int, table types.MonthlyTable) error
	GetMonthly(station string, year int) ([]types.MonthlyAggregate, error)
	RecordRender(rec types.RenderRecord) error
	ListRenders(station string, limit int) ([]types.RenderRecord, error)
	GetStations() ([]types.Station, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ArchiveRepository {
	return &repositoryImpl{db: db}
}

// SaveMonthly replaces the station's archived months for year with table.
func (r *repositoryImpl) SaveMonthly(runID string, year int, table types.MonthlyTable) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stationID, err := ensureStation(tx, table.Station)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(deleteMonthlySQL, stationID, year); err != nil {
		return fmt.Errorf("delete monthly %q/%d: %w", table.Station, year, err)
	}

	stmt, err := tx.Prepare(insertMonthlySQL)
	if err != nil {
		return fmt.Errorf("prepare insert monthly: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Error("close insert monthly stmt", "error", err)
		}
	}()

	for _, m := range table.Months {
		var temp any
		if m.Temperature != nil {
			temp = *m.Temperature
		}
		if _, err := stmt.Exec(
			stationID,
			m.Month.UTC().Format(monthLayout),
			year,
			temp,
			m.Precipitation,
			m.TemperatureDays,
			m.PrecipitationDays,
			runID,
		); err != nil {
			return fmt.Errorf("insert month %s: %w", m.Month.Format(monthLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetMonthly(station string, year int) ([]types.MonthlyAggregate, error) {
	rows, err := r.db.Query(getMonthlySQL, station, year)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close monthly rows", "error", err)
		}
	}()

	var out []types.MonthlyAggregate
	for rows.Next() {
		var (
			m     types.MonthlyAggregate
			month string
			temp  sql.NullFloat64
		)
		if err := rows.Scan(&month, &temp, &m.Precipitation, &m.TemperatureDays, &m.PrecipitationDays); err != nil {
			return nil, err
		}
		t, err := time.Parse(monthLayout, month)
		if err != nil {
			return nil, fmt.Errorf("parse month %q: %w", month, err)
		}
		m.Month = t
		if temp.Valid {
			v := temp.Float64
			m.Temperature = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) RecordRender(rec types.RenderRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stationID, err := ensureStation(tx, rec.Station)
	if err != nil {
		return err
	}

	var thumb any
	if rec.ThumbnailPath != "" {
		thumb = rec.ThumbnailPath
	}
	if _, err := tx.Exec(insertRenderSQL,
		rec.RunID,
		stationID,
		rec.Year,
		rec.Path,
		thumb,
		rec.RenderedAt.UTC().Format(renderedAtLayout),
	); err != nil {
		return fmt.Errorf("insert render %s: %w", rec.RunID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRenders returns the station's renders, newest first.
func (r *repositoryImpl) ListRenders(station string, limit int) ([]types.RenderRecord, error) {
	rows, err := r.db.Query(getRendersSQL, station, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close renders rows", "error", err)
		}
	}()

	var out []types.RenderRecord
	for rows.Next() {
		var (
			rec   types.RenderRecord
			thumb sql.NullString
			ts    string
		)
		if err := rows.Scan(&rec.RunID, &rec.Station, &rec.Year, &rec.Path, &thumb, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(renderedAtLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse rendered_at %q: %w", ts, err)
		}
		rec.RenderedAt = t
		rec.ThumbnailPath = thumb.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetStations() ([]types.Station, error) {
	rows, err := r.db.Query(getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	var out []types.Station
	for rows.Next() {
		var s types.Station
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func ensureStation(tx *sql.Tx, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("station name is required")
	}
	if _, err := tx.Exec(upsertStationSQL, name); err != nil {
		return 0, fmt.Errorf("upsert station %q: %w", name, err)
	}
	var id int64
	if err := tx.QueryRow(getStationIDByNameSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup station %q: %w", name, err)
	}
	return id, nil
}
