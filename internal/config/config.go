package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Station is one input file and the diagram produced from it.
type Station struct {
	Name     string `validate:"required"`
	Path     string `validate:"required"`
	Title    string `validate:"required"`
	Filename string `validate:"required"`
}

type Config struct {
	AppEnv   string `validate:"oneof=dev prod"`
	LogLevel slog.Level

	Stations []Station `validate:"min=1,dive"`
	Year     int       `validate:"gte=1000,lte=9999"`

	// Axis bounds. Their order is not checked: a min above its max flips
	// that axis and equal bounds draw an empty chart.
	TempMin float64
	TempMax float64
	PrecMin float64
	PrecMax float64

	OutputDir           string `validate:"required"`
	DateColumn          string `validate:"required"`
	TemperatureColumn   string `validate:"required"`
	PrecipitationColumn string `validate:"required"`
	NAValues            []string
	BarWidth            time.Duration `validate:"gt=0"`
	ThumbnailWidth      int           `validate:"gte=0"`
	MaxParallel         int           `validate:"gte=1"`

	SQLitePath       string
	SQLiteDSN        string
	SQLiteLogQueries bool

	MQTTBroker      string
	MQTTPort        int `validate:"gte=1,lte=65535"`
	MQTTClientID    string
	MQTTTopicPrefix string
}

// ArchiveEnabled reports whether monthly aggregates are stored in SQLite.
func (c Config) ArchiveEnabled() bool {
	return c.SQLitePath != "" || c.SQLiteDSN != ""
}

// PublishEnabled reports whether render events are published over MQTT.
func (c Config) PublishEnabled() bool {
	return c.MQTTBroker != ""
}

// LoadDotEnv loads variables from an env file into the process environment
// without overriding values that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %q: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	year, err := intEnv("YEAR", 2018)
	if err != nil {
		return Config{}, err
	}

	tempMin, err := floatEnv("TEMP_MIN", -15)
	if err != nil {
		return Config{}, err
	}
	tempMax, err := floatEnv("TEMP_MAX", 20)
	if err != nil {
		return Config{}, err
	}
	precMin, err := floatEnv("PREC_MIN", 0)
	if err != nil {
		return Config{}, err
	}
	precMax, err := floatEnv("PREC_MAX", 370)
	if err != nil {
		return Config{}, err
	}

	barWidthDays, err := intEnv("BAR_WIDTH_DAYS", 20)
	if err != nil {
		return Config{}, err
	}
	thumbnailWidth, err := intEnv("THUMBNAIL_WIDTH", 0)
	if err != nil {
		return Config{}, err
	}
	maxParallel, err := intEnv("MAX_PARALLEL", 1)
	if err != nil {
		return Config{}, err
	}

	logQueries, err := boolEnv("SQLITE_LOG_QUERIES", false)
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := intEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:   appEnv,
		LogLevel: level,
		Stations: []Station{
			station(stringEnv("STATION_A_NAME", "Garmisch-Partenkirchen"),
				stringEnv("STATION_A_PATH", "./data/produkt_klima_tag_20171010_20190412_01550.txt")),
			station(stringEnv("STATION_B_NAME", "Zugspitze"),
				stringEnv("STATION_B_PATH", "./data/produkt_klima_tag_20171010_20190412_05792.txt")),
		},
		Year:                year,
		TempMin:             tempMin,
		TempMax:             tempMax,
		PrecMin:             precMin,
		PrecMax:             precMax,
		OutputDir:           stringEnv("OUTPUT_DIR", "Output"),
		DateColumn:          stringEnv("DATE_COLUMN", "MESS_DATUM"),
		TemperatureColumn:   stringEnv("TEMP_COLUMN", "TMK"),
		PrecipitationColumn: stringEnv("PREC_COLUMN", "RSK"),
		NAValues:            listEnv("NA_VALUES"),
		BarWidth:            time.Duration(barWidthDays) * 24 * time.Hour,
		ThumbnailWidth:      thumbnailWidth,
		MaxParallel:         maxParallel,
		SQLitePath:          stringEnv("SQLITE_PATH", ""),
		SQLiteDSN:           stringEnv("SQLITE_DSN", ""),
		SQLiteLogQueries:    logQueries,
		MQTTBroker:          stringEnv("MQTT_BROKER", ""),
		MQTTPort:            mqttPort,
		MQTTClientID:        stringEnv("MQTT_CLIENT_ID", "climate-diagram"),
		MQTTTopicPrefix:     strings.Trim(stringEnv("MQTT_TOPIC_PREFIX", "stations"), "/"),
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and reports the first offending
// variable by field name.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s=%v (rule %s)", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func station(name, path string) Station {
	return Station{
		Name:     name,
		Path:     path,
		Title:    "Climate Diagram\n" + name,
		Filename: name + "_climateDiagram.png",
	}
}

func stringEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func listEnv(key string) []string {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
