package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
)

// openTestDB connects to the database named by POSTGRES_* env vars and
// creates the schema. Tests are skipped when no database is configured.
func openTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		t.Skip("POSTGRES_HOST not set, skipping database tests")
	}
	port := 5432
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	db, err := OpenPostgres(context.Background(), PostgresConfig{
		Host:     host,
		Port:     port,
		Database: envOr("POSTGRES_DATABASE", "fleetsync_test"),
		User:     envOr("POSTGRES_USER", "fleetsync"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.CreateSchema(context.Background()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	cleanTables(t, db)
	return db
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func cleanTables(t *testing.T, db *PostgresDB) {
	t.Helper()
	for _, table := range []string{"informacoes_com_cliente_mv", "informacoes", "historico_grades", "graderumocerto", "ultima_execucao"} {
		if _, err := db.pool.Exec(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
}

func strPtr(s string) *string { return &s }

func testRecord(code string) TripRecord {
	return TripRecord{
		Line:                 "L1",
		RealDeparture:        strPtr("15/03/2025 06:30:00"),
		RealArrival:          strPtr("15/03/2025 07:45:00"),
		RouteIntegrationCode: code,
		RouteName:            "Downtown Express",
		RealVehicle:          "BUS1",
		EstimatedDistance:    strPtr("18.4"),
		ClientName:           strPtr("Acme Transit"),
	}
}

func TestHistoryUpsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rows := []TripRecord{testRecord("R1"), testRecord("R2")}
	for i := 0; i < 2; i++ {
		if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", rows); err != nil {
			t.Fatalf("upsert attempt %d: %v", i+1, err)
		}
	}

	codes, err := db.HistoryRouteCodesOnDate(ctx, "2025-03-15")
	if err != nil {
		t.Fatalf("list codes: %v", err)
	}
	if len(codes) != 2 {
		t.Errorf("got %d rows after double upsert, want 2", len(codes))
	}
}

func TestHistoryClientNameFillsForward(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := testRecord("R1")
	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{rec}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// A later sync without the client name must not clobber it.
	rec.ClientName = nil
	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{rec}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var name *string
	err := db.pool.QueryRow(ctx,
		`SELECT client_name FROM historico_grades WHERE route_integration_code = 'R1'`).Scan(&name)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if name == nil || *name != "Acme Transit" {
		t.Errorf("client_name = %v, want Acme Transit", name)
	}
}

func TestHistoryUpsertPreservesOdometer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := testRecord("R1")
	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{rec}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err := db.UpdateOdometer(ctx, "BUS1", "L1", "15/03/2025 06:30:00", "15/03/2025 07:45:00", "2025-03-15", 1020.5)
	if err != nil {
		t.Fatalf("update odometer: %v", err)
	}

	// A re-sync of the same day must not wipe the estimate.
	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{rec}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := db.LastOdometer(ctx, "BUS1", "15/03/2025 09:00:00")
	if err != nil {
		t.Fatalf("last odometer: %v", err)
	}
	if got != 1020.5 {
		t.Errorf("odometer = %v, want 1020.5", got)
	}
}

func TestTripsMissingOdometerOrdersByDeparture(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	early := testRecord("R1")
	early.RealDeparture = strPtr("15/03/2025 06:00:00")
	early.RealArrival = strPtr("15/03/2025 07:00:00")
	late := testRecord("R2")
	late.RealDeparture = strPtr("15/03/2025 14:00:00")
	late.RealArrival = strPtr("15/03/2025 15:00:00")

	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{late, early}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	trips, err := db.TripsMissingOdometer(ctx, "BUS1", "2025-03-15")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("got %d trips, want 2", len(trips))
	}
	if trips[0].RealDeparture != "15/03/2025 06:00:00" {
		t.Errorf("first trip departs %s, want 06:00", trips[0].RealDeparture)
	}
}

func TestInsertViolationDedupes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	row := ViolationRow{
		LineName:      "L1",
		RouteName:     "Downtown Express",
		RealVehicle:   "BUS1",
		EvidenceURL:   "https://evidence.example.org/e/1",
		ExecutionDate: "2025-03-15",
	}

	inserted, err := db.InsertViolation(ctx, row)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Error("first insert should report true")
	}

	inserted, err = db.InsertViolation(ctx, row)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("duplicate key should report false")
	}
}

func TestRefreshJoinViewPicksLatestRealizedSchedule(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Two history rows share the normalized route name on the same date;
	// the join must pick the one with the highest id.
	first := testRecord("R1")
	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{first}); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	second := testRecord("R2")
	second.RouteName = "  downtown express " // normalizes to the same key
	second.RealVehicle = "BUS2"
	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{second}); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	if _, err := db.InsertViolation(ctx, ViolationRow{
		RouteName:     "Downtown Express",
		ExecutionDate: "2025-03-15",
	}); err != nil {
		t.Fatalf("insert violation: %v", err)
	}
	// A violation with no realized schedule keeps a NULL schedule_id.
	if _, err := db.InsertViolation(ctx, ViolationRow{
		RouteName:     "Ghost Route",
		ExecutionDate: "2025-03-15",
	}); err != nil {
		t.Fatalf("insert orphan violation: %v", err)
	}

	n, err := db.RefreshJoinView(ctx, 100)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 2 {
		t.Errorf("view rows = %d, want 2", n)
	}

	rows, err := db.UnclassifiedViolationPage(ctx, 0, 10, "2025-03-15")
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d pending rows, want 2", len(rows))
	}

	byRoute := make(map[string]JoinRow)
	for _, r := range rows {
		byRoute[r.RouteName] = r
	}
	matched := byRoute["Downtown Express"]
	if matched.ScheduleID == nil {
		t.Fatal("matched violation has no schedule_id")
	}
	if matched.RealVehicle == nil || *matched.RealVehicle != "BUS2" {
		t.Errorf("joined vehicle = %v, want BUS2 from the higher-id row", matched.RealVehicle)
	}
	if byRoute["Ghost Route"].ScheduleID != nil {
		t.Error("orphan violation should keep NULL schedule_id")
	}
}

func TestApplyClassificationsUpdatesBothTables(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{testRecord("R1")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := db.InsertViolation(ctx, ViolationRow{RouteName: "Downtown Express", ExecutionDate: "2025-03-15"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.RefreshJoinView(ctx, 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	rows, err := db.UnclassifiedViolationPage(ctx, 0, 10, "2025-03-15")
	if err != nil || len(rows) != 1 {
		t.Fatalf("page: %v (%d rows)", err, len(rows))
	}

	err = db.ApplyClassifications(ctx, []Classification{{ID: rows[0].ID, Type: "Speed Exceeded"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Classified rows leave the pending page.
	rows, err = db.UnclassifiedViolationPage(ctx, 0, 10, "2025-03-15")
	if err != nil {
		t.Fatalf("page after apply: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("still %d pending rows after classification", len(rows))
	}

	summary, err := db.ViolationSummary(ctx, "2025-03-15")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary["Speed Exceeded"] != 1 {
		t.Errorf("summary = %v", summary)
	}
}

func TestInconsistentRowsReofferedOnlyToday(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertViolation(ctx, ViolationRow{RouteName: "Ghost Route", ExecutionDate: "2025-03-15"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.RefreshJoinView(ctx, 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	rows, err := db.UnclassifiedViolationPage(ctx, 0, 10, "2025-03-15")
	if err != nil || len(rows) != 1 {
		t.Fatalf("page: %v (%d rows)", err, len(rows))
	}
	if err := db.ApplyClassifications(ctx, []Classification{{ID: rows[0].ID, Type: ViolationInconsistent}}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Same execution date: the row comes back for another look.
	rows, err = db.UnclassifiedViolationPage(ctx, 0, 10, "2025-03-15")
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("inconsistent row should be re-offered today, got %d rows", len(rows))
	}

	// A later day: the verdict is final.
	rows, err = db.UnclassifiedViolationPage(ctx, 0, 10, "2025-03-16")
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("inconsistent row from a past day should stay settled, got %d rows", len(rows))
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.LastHeartbeat(ctx)
	if err != nil {
		t.Fatalf("read empty heartbeat: %v", err)
	}
	if got != nil {
		t.Errorf("heartbeat before any run = %v, want nil", got)
	}

	if err := db.UpdateHeartbeat(ctx); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = db.LastHeartbeat(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil {
		t.Fatal("heartbeat not recorded")
	}
}

func TestSweepDeletesHistoryRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertScheduleHistoryBatch(ctx, "2025-03-15", []TripRecord{testRecord("R1")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.DeleteScheduleHistory(ctx, "R1", "2025-03-15"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	codes, err := db.HistoryRouteCodesOnDate(ctx, "2025-03-15")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("row still present after sweep: %v", codes)
	}
}
