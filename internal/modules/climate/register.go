package climate

import (
	"database/sql"
	"log/slog"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/repository"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/service"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/views"
	"github.com/python-kurs/exercise-4-l3enR/internal/mqtt"
)

// RegisterFeature builds the climate diagram pipeline. db and publisher may
// be nil to run without archive or notifications.
func RegisterFeature(cfg config.Config, db *sql.DB, publisher *mqtt.Publisher, logger *slog.Logger) *service.Service {
	renderer := views.NewRenderer(cfg.OutputDir, cfg.BarWidth, logger)

	var archive service.Archive
	if db != nil {
		archive = repository.NewRepository(db)
	}
	var notifier service.Notifier
	if publisher != nil {
		notifier = publisher
	}

	return service.NewService(cfg, renderer, archive, notifier, logger)
}
