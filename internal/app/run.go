package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
	db "github.com/python-kurs/exercise-4-l3enR/internal/db"
	climate "github.com/python-kurs/exercise-4-l3enR/internal/modules/climate"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/service"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
	"github.com/python-kurs/exercise-4-l3enR/internal/mqtt"
)

const mqttConnectTimeout = 5 * time.Second

// Run renders a diagram for every configured station. Stations with no data
// in the selected year are logged as warnings and do not fail the run; every
// other station failure is joined into the returned error. An archive or
// broker that cannot be reached at start is skipped with a warning.
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"stations", len(cfg.Stations),
		"year", cfg.Year,
		"outputDir", cfg.OutputDir,
		"tempRange", []float64{cfg.TempMin, cfg.TempMax},
		"precRange", []float64{cfg.PrecMin, cfg.PrecMax},
		"thumbnailWidth", cfg.ThumbnailWidth,
		"maxParallel", cfg.MaxParallel,
		"archive", cfg.ArchiveEnabled(),
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
	)

	var dbConn *sql.DB
	if cfg.ArchiveEnabled() {
		conn, err := openArchive(cfg, logger)
		if err != nil {
			logger.Warn("archive unavailable (continuing without archive)", "sqlitePath", cfg.SQLitePath, "error", err)
		} else {
			dbConn = conn
			defer func() {
				if err := db.Close(dbConn); err != nil {
					logger.Error("db close", "error", err)
				}
			}()
		}
	}

	var publisher *mqtt.Publisher
	if cfg.PublishEnabled() {
		p := mqtt.NewPublisher(cfg, logger)
		connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err := p.Connect(connectCtx)
		cancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			p.Disconnect()
		} else {
			publisher = p
			defer func() {
				logger.Info("mqtt disconnecting")
				publisher.Disconnect()
			}()
		}
	}

	svc := climate.RegisterFeature(cfg, dbConn, publisher, logger)
	outcomes := svc.ProcessAll(ctx, cfg.Stations)

	return summarize(ctx, outcomes, cfg.Year, logger)
}

// summarize logs every outcome and returns the joined hard failures. When
// nothing failed hard but stations were cut short by ctx, it returns ctx.Err().
func summarize(ctx context.Context, outcomes []service.Outcome, year int, logger *slog.Logger) error {
	var errs []error
	written, cancelled := 0, 0
	for _, o := range outcomes {
		if o.Err == nil {
			written++
			continue
		}
		if errors.Is(o.Err, types.ErrEmptyResult) {
			logger.Warn("no observations in selected year, skipping",
				"station", o.Station, "run_id", o.Result.RunID, "year", year)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(o.Err, ctxErr) {
			logger.Warn("station cancelled", "station", o.Station, "run_id", o.Result.RunID, "error", o.Err)
			cancelled++
			continue
		}
		stage := ""
		var se *types.StageError
		if errors.As(o.Err, &se) {
			stage = se.Stage
		}
		logger.Error("station failed",
			"station", o.Station, "run_id", o.Result.RunID, "stage", stage, "error", o.Err)
		errs = append(errs, o.Err)
	}

	logger.Info("run finished",
		"stations", len(outcomes), "written", written, "failed", len(errs), "cancelled", cancelled)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if cancelled > 0 {
		return ctx.Err()
	}
	return nil
}

func openArchive(cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	conn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		_ = db.Close(conn)
		return nil, err
	}

	var ok int
	if err := conn.QueryRow(`SELECT 1`).Scan(&ok); err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	if ok != 1 {
		_ = db.Close(conn)
		return nil, errors.New("database connection failed")
	}
	logger.Info("database connection successful")
	return conn, nil
}
