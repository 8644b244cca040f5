package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
	"github.com/python-kurs/exercise-4-l3enR/internal/db"
	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(config.Config{SQLiteDSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(conn); closeErr != nil {
			t.Fatalf("close db: %v", closeErr)
		}
	})
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func ptr(v float64) *float64 { return &v }

func monthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

func sampleTable(station string) types.MonthlyTable {
	return types.MonthlyTable{
		Station: station,
		Months: []types.MonthlyAggregate{
			{Month: monthEnd(2018, time.January), Temperature: ptr(-1.2), Precipitation: 180.2, TemperatureDays: 31, PrecipitationDays: 31},
			{Month: monthEnd(2018, time.February), Temperature: nil, Precipitation: 0, TemperatureDays: 0, PrecipitationDays: 0},
			{Month: monthEnd(2018, time.March), Temperature: ptr(2.9), Precipitation: 85.1, TemperatureDays: 31, PrecipitationDays: 30},
		},
	}
}

func TestNewRepository(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if repo == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestGetStations_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	stations, err := repo.GetStations()
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 0 {
		t.Fatalf("GetStations: got %d stations, want 0", len(stations))
	}
}

func TestSaveMonthly_RoundTrip(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	in := sampleTable("Zugspitze")

	if err := repo.SaveMonthly("run-1", 2018, in); err != nil {
		t.Fatalf("SaveMonthly: %v", err)
	}
	got, err := repo.GetMonthly("Zugspitze", 2018)
	if err != nil {
		t.Fatalf("GetMonthly: %v", err)
	}
	if len(got) != len(in.Months) {
		t.Fatalf("GetMonthly: got %d months, want %d", len(got), len(in.Months))
	}
	for i, want := range in.Months {
		g := got[i]
		if !g.Month.Equal(want.Month) {
			t.Errorf("month[%d] = %s, want %s", i, g.Month, want.Month)
		}
		if (g.Temperature == nil) != (want.Temperature == nil) {
			t.Errorf("month[%d] temperature nil = %v, want %v", i, g.Temperature == nil, want.Temperature == nil)
		} else if g.Temperature != nil && *g.Temperature != *want.Temperature {
			t.Errorf("month[%d] temperature = %v, want %v", i, *g.Temperature, *want.Temperature)
		}
		if g.Precipitation != want.Precipitation {
			t.Errorf("month[%d] precipitation = %v, want %v", i, g.Precipitation, want.Precipitation)
		}
		if g.TemperatureDays != want.TemperatureDays || g.PrecipitationDays != want.PrecipitationDays {
			t.Errorf("month[%d] days = %d/%d, want %d/%d", i,
				g.TemperatureDays, g.PrecipitationDays, want.TemperatureDays, want.PrecipitationDays)
		}
	}
}

func TestSaveMonthly_ReplacesYear(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn)

	if err := repo.SaveMonthly("run-1", 2018, sampleTable("Zugspitze")); err != nil {
		t.Fatalf("SaveMonthly: %v", err)
	}
	other := sampleTable("Zugspitze")
	other.Months = other.Months[:1]
	other.Months[0].Month = monthEnd(2017, time.December)
	if err := repo.SaveMonthly("run-0", 2017, other); err != nil {
		t.Fatalf("SaveMonthly 2017: %v", err)
	}

	second := sampleTable("Zugspitze")
	second.Months = second.Months[2:]
	if err := repo.SaveMonthly("run-2", 2018, second); err != nil {
		t.Fatalf("SaveMonthly again: %v", err)
	}

	got, err := repo.GetMonthly("Zugspitze", 2018)
	if err != nil {
		t.Fatalf("GetMonthly: %v", err)
	}
	if len(got) != 1 || got[0].Month.Month() != time.March {
		t.Fatalf("GetMonthly after replace: got %+v, want only March", got)
	}
	if prev, err := repo.GetMonthly("Zugspitze", 2017); err != nil || len(prev) != 1 {
		t.Errorf("other year touched: got %d rows, err %v", len(prev), err)
	}

	var runID string
	if err := conn.QueryRow(`SELECT run_id FROM monthly_aggregates WHERE year = 2018`).Scan(&runID); err != nil {
		t.Fatalf("select run_id: %v", err)
	}
	if runID != "run-2" {
		t.Errorf("run_id = %q, want run-2", runID)
	}

	stations, err := repo.GetStations()
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 1 || stations[0].Name != "Zugspitze" {
		t.Errorf("GetStations = %+v, want single Zugspitze", stations)
	}
}

func TestSaveMonthly_RequiresStation(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if err := repo.SaveMonthly("run-1", 2018, types.MonthlyTable{}); err == nil {
		t.Fatal("SaveMonthly without station: error = nil, want non-nil")
	}
}

func TestGetMonthly_UnknownStation(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	got, err := repo.GetMonthly("Nowhere", 2018)
	if err != nil {
		t.Fatalf("GetMonthly: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetMonthly: got %d months, want 0", len(got))
	}
}

func TestRenders_NewestFirstAndLimit(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := types.RenderRecord{
			RunID:      id,
			Station:    "Garmisch-Partenkirchen",
			Year:       2018,
			Path:       "Output/Garmisch-Partenkirchen_climateDiagram.png",
			RenderedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if id == "c" {
			rec.ThumbnailPath = "Output/Garmisch-Partenkirchen_climateDiagram_thumb.png"
		}
		if err := repo.RecordRender(rec); err != nil {
			t.Fatalf("RecordRender %s: %v", id, err)
		}
	}

	got, err := repo.ListRenders("Garmisch-Partenkirchen", 2)
	if err != nil {
		t.Fatalf("ListRenders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRenders: got %d, want 2", len(got))
	}
	if got[0].RunID != "c" || got[1].RunID != "b" {
		t.Errorf("ListRenders order: got %s,%s want c,b", got[0].RunID, got[1].RunID)
	}
	if got[0].ThumbnailPath == "" || got[1].ThumbnailPath != "" {
		t.Errorf("thumbnail paths = %q, %q", got[0].ThumbnailPath, got[1].ThumbnailPath)
	}
	if !got[0].RenderedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("RenderedAt = %s, want %s", got[0].RenderedAt, base.Add(2*time.Hour))
	}
	if got[0].Station != "Garmisch-Partenkirchen" || got[0].Year != 2018 {
		t.Errorf("record = %+v", got[0])
	}
}

func TestListRenders_SubSecondOrder(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	renders := []struct {
		id string
		at time.Time
	}{
		{"whole-second", base},
		{"later-100ms", base.Add(100 * time.Millisecond)},
		{"earlier-1ns", base.Add(-time.Nanosecond)},
	}
	for _, r := range renders {
		rec := types.RenderRecord{RunID: r.id, Station: "Zugspitze", Year: 2018, Path: "x.png", RenderedAt: r.at}
		if err := repo.RecordRender(rec); err != nil {
			t.Fatalf("RecordRender %s: %v", r.id, err)
		}
	}

	got, err := repo.ListRenders("Zugspitze", 10)
	if err != nil {
		t.Fatalf("ListRenders: %v", err)
	}
	want := []string{"later-100ms", "whole-second", "earlier-1ns"}
	if len(got) != len(want) {
		t.Fatalf("ListRenders: got %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].RunID != id {
			t.Errorf("ListRenders[%d] = %s, want %s", i, got[i].RunID, id)
		}
	}
	if !got[0].RenderedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("RenderedAt = %s, want %s", got[0].RenderedAt, base.Add(100*time.Millisecond))
	}
}

func TestRecordRender_DuplicateRunID(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	rec := types.RenderRecord{RunID: "dup", Station: "Zugspitze", Year: 2018, Path: "x.png", RenderedAt: time.Now()}
	if err := repo.RecordRender(rec); err != nil {
		t.Fatalf("RecordRender: %v", err)
	}
	if err := repo.RecordRender(rec); err == nil {
		t.Fatal("RecordRender duplicate: error = nil, want non-nil")
	}
}
