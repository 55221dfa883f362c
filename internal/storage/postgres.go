// Package storage provides persistent storage for reconciled fleet
// telemetry: the current-state and historical schedule tables, the
// violation table, the denormalized join view, and the heartbeat row.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationInconsistent marks a violation whose schedule never resolved.
const ViolationInconsistent = "Inconsistent Data (missing schedule)"

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps the PostgreSQL connection pools. The heartbeat writer
// gets its own small fixed-size pool so pipeline bursts never starve it.
type PostgresDB struct {
	pool      *pgxpool.Pool
	heartbeat *pgxpool.Pool
}

// OpenPostgres opens the connection pools to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	hbCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse heartbeat config: %w", err)
	}
	hbCfg.MaxConns = 2
	hbCfg.MinConns = 1

	hb, err := pgxpool.NewWithConfig(ctx, hbCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open heartbeat pool: %w", err)
	}

	return &PostgresDB{pool: pool, heartbeat: hb}, nil
}

// Close closes the connection pools.
func (d *PostgresDB) Close() {
	d.pool.Close()
	d.heartbeat.Close()
}

// Pool returns the underlying main pool for advanced operations.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the tables.
//
// Departure/arrival columns stay VARCHAR in dd/mm/yyyy HH:MM:SS form for
// read-compatibility with existing data; queries that need temporal order
// parse them with to_timestamp instead of comparing strings.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Current state: one row per route integration code, upserted every pass.
	CREATE TABLE IF NOT EXISTS graderumocerto (
		line                    VARCHAR(50),
		estimated_departure     VARCHAR(50),
		estimated_arrival       VARCHAR(50),
		real_departure          VARCHAR(50),
		real_arrival            VARCHAR(50),
		route_integration_code  VARCHAR(255) NOT NULL,
		route_name              VARCHAR(255),
		direction_name          VARCHAR(255),
		shift                   VARCHAR(50),
		estimated_vehicle       VARCHAR(255),
		real_vehicle            VARCHAR(255),
		estimated_distance      VARCHAR(50),
		travelled_distance      VARCHAR(50),
		client_name             VARCHAR(255),
		PRIMARY KEY (route_integration_code)
	);

	-- Historical: one row per route/date pair, merged on every sync of the
	-- same day, deleted by the cancellation sweep.
	CREATE TABLE IF NOT EXISTS historico_grades (
		id                      BIGSERIAL PRIMARY KEY,
		line                    VARCHAR(50),
		estimated_departure     VARCHAR(50),
		estimated_arrival       VARCHAR(50),
		real_departure          VARCHAR(50),
		real_arrival            VARCHAR(50),
		route_integration_code  VARCHAR(255) NOT NULL,
		route_name              VARCHAR(255),
		direction_name          VARCHAR(255),
		shift                   VARCHAR(50),
		estimated_vehicle       VARCHAR(255),
		real_vehicle            VARCHAR(255),
		estimated_distance      VARCHAR(50),
		travelled_distance      VARCHAR(50),
		client_name             VARCHAR(255),
		odometro                VARCHAR(50),
		data_registro           DATE NOT NULL,
		UNIQUE (route_integration_code, data_registro)
	);

	CREATE INDEX IF NOT EXISTS idx_historico_vehicle ON historico_grades(real_vehicle, data_registro);
	CREATE INDEX IF NOT EXISTS idx_historico_route ON historico_grades(lower(btrim(route_name)), data_registro);

	-- Violations: created once per non-conformant trip per day, mutated
	-- exactly once to set violation_type, never deleted.
	CREATE TABLE IF NOT EXISTS informacoes (
		id              BIGSERIAL PRIMARY KEY,
		line_name       VARCHAR(255),
		route_name      VARCHAR(255) NOT NULL,
		direction       VARCHAR(255),
		real_vehicle    VARCHAR(255),
		evidence_url    TEXT,
		data_execucao   DATE NOT NULL,
		violation_type  VARCHAR(100),
		UNIQUE (route_name, data_execucao)
	);

	-- Denormalized join of violations and schedule data. Rebuilt in
	-- batches; not a system of record.
	CREATE TABLE IF NOT EXISTS informacoes_com_cliente_mv (
		id              BIGINT PRIMARY KEY,
		line_name       VARCHAR(255),
		route_name      VARCHAR(255),
		direction       VARCHAR(255),
		real_vehicle    VARCHAR(255),
		evidence_url    TEXT,
		data_execucao   DATE,
		violation_type  VARCHAR(100),
		schedule_id     BIGINT,
		real_departure  VARCHAR(50),
		real_arrival    VARCHAR(50),
		client_name     VARCHAR(255)
	);

	-- Single-row heartbeat.
	CREATE TABLE IF NOT EXISTS ultima_execucao (
		id              INT PRIMARY KEY,
		last_execution  TIMESTAMPTZ
	);
	`
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// TripRecord is one schedule row at the storage boundary. Timestamp
// fields are already locale-formatted display strings (nil = upstream
// sentinel); distances are numeric-as-text.
type TripRecord struct {
	Line                 string
	EstimatedDeparture   *string
	EstimatedArrival     *string
	RealDeparture        *string
	RealArrival          *string
	RouteIntegrationCode string
	RouteName            string
	DirectionName        string
	Shift                string
	EstimatedVehicle     string
	RealVehicle          string
	EstimatedDistance    *string
	TravelledDistance    *string
	ClientName           *string
}

// UpsertTripSchedule upserts the current-state row for a route code.
// Inserts set every column; updates refresh only the realized fields and
// distances, matching how the current-state table has always behaved.
func (d *PostgresDB) UpsertTripSchedule(ctx context.Context, r TripRecord) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO graderumocerto (
			line, estimated_departure, estimated_arrival, real_departure, real_arrival,
			route_integration_code, route_name, direction_name, shift,
			estimated_vehicle, real_vehicle, estimated_distance, travelled_distance, client_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (route_integration_code) DO UPDATE SET
			estimated_departure = EXCLUDED.estimated_departure,
			estimated_arrival = EXCLUDED.estimated_arrival,
			real_departure = EXCLUDED.real_departure,
			real_arrival = EXCLUDED.real_arrival,
			real_vehicle = EXCLUDED.real_vehicle,
			estimated_distance = EXCLUDED.estimated_distance,
			travelled_distance = EXCLUDED.travelled_distance
	`, r.Line, r.EstimatedDeparture, r.EstimatedArrival, r.RealDeparture, r.RealArrival,
		r.RouteIntegrationCode, r.RouteName, r.DirectionName, r.Shift,
		r.EstimatedVehicle, r.RealVehicle, r.EstimatedDistance, r.TravelledDistance, r.ClientName)
	return err
}

// UpsertScheduleHistoryBatch merges one day's rows into historico_grades
// with a single multi-row statement. On conflict every field overwrites
// except client_name, which fills forward (a later null never clobbers a
// stored value), and odometro, which only the estimator writes.
func (d *PostgresDB) UpsertScheduleHistoryBatch(ctx context.Context, date string, rows []TripRecord) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO historico_grades (
			line, estimated_departure, estimated_arrival, real_departure, real_arrival,
			route_integration_code, route_name, direction_name, shift,
			estimated_vehicle, real_vehicle, estimated_distance, travelled_distance,
			client_name, data_registro
		) VALUES `)

	args := make([]any, 0, len(rows)*15)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 15
		sb.WriteString("(")
		for j := 1; j <= 15; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			sb.WriteString("$" + strconv.Itoa(base+j))
		}
		sb.WriteString(")")
		args = append(args,
			r.Line, r.EstimatedDeparture, r.EstimatedArrival, r.RealDeparture, r.RealArrival,
			r.RouteIntegrationCode, r.RouteName, r.DirectionName, r.Shift,
			r.EstimatedVehicle, r.RealVehicle, r.EstimatedDistance, r.TravelledDistance,
			r.ClientName, date)
	}

	sb.WriteString(`
		ON CONFLICT (route_integration_code, data_registro) DO UPDATE SET
			line = EXCLUDED.line,
			estimated_departure = EXCLUDED.estimated_departure,
			estimated_arrival = EXCLUDED.estimated_arrival,
			real_departure = EXCLUDED.real_departure,
			real_arrival = EXCLUDED.real_arrival,
			route_name = EXCLUDED.route_name,
			direction_name = EXCLUDED.direction_name,
			shift = EXCLUDED.shift,
			estimated_vehicle = EXCLUDED.estimated_vehicle,
			real_vehicle = EXCLUDED.real_vehicle,
			estimated_distance = EXCLUDED.estimated_distance,
			travelled_distance = EXCLUDED.travelled_distance,
			client_name = COALESCE(EXCLUDED.client_name, historico_grades.client_name)`)

	_, err := d.pool.Exec(ctx, sb.String(), args...)
	return err
}

// DeleteScheduleHistory removes one route/date occurrence.
func (d *PostgresDB) DeleteScheduleHistory(ctx context.Context, code, date string) error {
	_, err := d.pool.Exec(ctx,
		`DELETE FROM historico_grades WHERE route_integration_code = $1 AND data_registro = $2`,
		code, date)
	return err
}

// DistinctCurrentRouteCodes lists every route code known to the
// current-state table.
func (d *PostgresDB) DistinctCurrentRouteCodes(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx,
		`SELECT DISTINCT route_integration_code FROM graderumocerto WHERE route_integration_code <> ''`)
}

// HistoryRouteCodesOnDate lists the route codes recorded for a date.
func (d *PostgresDB) HistoryRouteCodesOnDate(ctx context.Context, date string) ([]string, error) {
	return d.queryStrings(ctx,
		`SELECT DISTINCT route_integration_code FROM historico_grades WHERE data_registro = $1`, date)
}

func (d *PostgresDB) queryStrings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// HistoryTrip is one historico_grades row as seen by the odometer
// estimator.
type HistoryTrip struct {
	ID                int64
	Line              string
	RealVehicle       string
	RealDeparture     string
	RealArrival       string
	RegistrationDate  string
	Odometer          *string
	EstimatedDistance *string
}

// VehiclesMissingOdometer lists vehicles that still have trips without an
// odometer reading.
func (d *PostgresDB) VehiclesMissingOdometer(ctx context.Context) ([]string, error) {
	return d.queryStrings(ctx, `
		SELECT DISTINCT real_vehicle FROM historico_grades
		WHERE real_vehicle IS NOT NULL AND real_vehicle <> ''
		  AND (odometro IS NULL OR odometro = '' OR odometro = 'NULL')`)
}

const historyTripColumns = `id, line, real_vehicle, real_departure, real_arrival,
	to_char(data_registro, 'YYYY-MM-DD'), odometro, estimated_distance`

// LatestTripOnDate returns the vehicle's most recent realized trip on a
// date, odometer filled or not, or nil when the vehicle did not run.
func (d *PostgresDB) LatestTripOnDate(ctx context.Context, vehicle, date string) (*HistoryTrip, error) {
	var t HistoryTrip
	err := d.pool.QueryRow(ctx, `
		SELECT `+historyTripColumns+`
		FROM historico_grades
		WHERE real_vehicle = $1 AND data_registro = $2
		  AND real_departure IS NOT NULL AND real_arrival IS NOT NULL
		ORDER BY to_timestamp(real_arrival, 'DD/MM/YYYY HH24:MI:SS') DESC
		LIMIT 1`, vehicle, date).Scan(
		&t.ID, &t.Line, &t.RealVehicle, &t.RealDeparture, &t.RealArrival,
		&t.RegistrationDate, &t.Odometer, &t.EstimatedDistance)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TripsMissingOdometer returns the vehicle's realized trips on a date
// still lacking an odometer value, ordered by real departure ascending.
// Processing order matters: each trip's estimate seeds the next.
func (d *PostgresDB) TripsMissingOdometer(ctx context.Context, vehicle, date string) ([]HistoryTrip, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+historyTripColumns+`
		FROM historico_grades
		WHERE real_vehicle = $1 AND data_registro = $2
		  AND real_departure IS NOT NULL AND real_arrival IS NOT NULL
		  AND (odometro IS NULL OR odometro = '' OR odometro = 'NULL')
		ORDER BY to_timestamp(real_departure, 'DD/MM/YYYY HH24:MI:SS') ASC`, vehicle, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryTrip
	for rows.Next() {
		var t HistoryTrip
		if err := rows.Scan(&t.ID, &t.Line, &t.RealVehicle, &t.RealDeparture, &t.RealArrival,
			&t.RegistrationDate, &t.Odometer, &t.EstimatedDistance); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LastOdometer returns the vehicle's latest odometer reading from a trip
// that arrived strictly before the given departure, or 0 when none exists.
func (d *PostgresDB) LastOdometer(ctx context.Context, vehicle, departure string) (float64, error) {
	var raw string
	err := d.pool.QueryRow(ctx, `
		SELECT odometro FROM historico_grades
		WHERE real_vehicle = $1
		  AND odometro IS NOT NULL AND odometro <> '' AND odometro <> 'NULL'
		  AND real_arrival IS NOT NULL
		  AND to_timestamp(real_arrival, 'DD/MM/YYYY HH24:MI:SS')
		      < to_timestamp($2, 'DD/MM/YYYY HH24:MI:SS')
		ORDER BY to_timestamp(real_arrival, 'DD/MM/YYYY HH24:MI:SS') DESC
		LIMIT 1`, vehicle, departure).Scan(&raw)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// UpdateOdometer writes the estimated odometer against the exact trip row.
func (d *PostgresDB) UpdateOdometer(ctx context.Context, vehicle, line, departure, arrival, date string, value float64) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE historico_grades SET odometro = $1
		WHERE real_vehicle = $2 AND line = $3
		  AND real_departure = $4 AND real_arrival = $5 AND data_registro = $6`,
		strconv.FormatFloat(value, 'f', -1, 64), vehicle, line, departure, arrival, date)
	return err
}

// ViolationRow is one informacoes row at the storage boundary.
type ViolationRow struct {
	ID            int64
	LineName      string
	RouteName     string
	Direction     string
	RealVehicle   string
	EvidenceURL   string
	ExecutionDate string
	ViolationType *string
}

// InsertViolation inserts a violation if its (route, date) key is not yet
// present. Duplicate keys are ignored, not errors. Returns whether a row
// was actually inserted.
func (d *PostgresDB) InsertViolation(ctx context.Context, v ViolationRow) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO informacoes (line_name, route_name, direction, real_vehicle, evidence_url, data_execucao)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (route_name, data_execucao) DO NOTHING`,
		v.LineName, v.RouteName, v.Direction, v.RealVehicle, v.EvidenceURL, v.ExecutionDate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// JoinRow is one join-view row as seen by the classifier.
type JoinRow struct {
	ID            int64
	RouteName     string
	RealVehicle   *string
	RealDeparture *string
	RealArrival   *string
	ScheduleID    *int64
	ViolationType *string
}

// UnclassifiedViolationPage returns the next batch of join-view rows
// needing classification, strictly ascending by id. Rows already marked
// inconsistent are re-offered only for today's execution date, so a
// schedule that arrives late the same day still gets a real verdict.
func (d *PostgresDB) UnclassifiedViolationPage(ctx context.Context, lastID int64, limit int, today string) ([]JoinRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, route_name, real_vehicle, real_departure, real_arrival, schedule_id, violation_type
		FROM informacoes_com_cliente_mv
		WHERE id > $1
		  AND (violation_type IS NULL
		       OR (violation_type = $3 AND data_execucao = $4))
		ORDER BY id ASC
		LIMIT $2`, lastID, limit, ViolationInconsistent, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JoinRow
	for rows.Next() {
		var r JoinRow
		if err := rows.Scan(&r.ID, &r.RouteName, &r.RealVehicle, &r.RealDeparture, &r.RealArrival,
			&r.ScheduleID, &r.ViolationType); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScheduleHistoryExists reports whether a historico_grades row still
// exists. The view can race ahead of a concurrent cancellation sweep.
func (d *PostgresDB) ScheduleHistoryExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := d.pool.QueryRow(ctx, `SELECT 1 FROM historico_grades WHERE id = $1`, id).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Classification is one classifier verdict to persist.
type Classification struct {
	ID   int64
	Type string
}

// ApplyClassifications writes a page of verdicts in one batch, updating
// the system of record and the view copy together. Single writer: only
// the orchestrating goroutine calls this.
func (d *PostgresDB) ApplyClassifications(ctx context.Context, results []Classification) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`UPDATE informacoes SET violation_type = $1 WHERE id = $2`, r.Type, r.ID)
		batch.Queue(`UPDATE informacoes_com_cliente_mv SET violation_type = $1 WHERE id = $2`, r.Type, r.ID)
	}
	br := d.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("apply classification batch: %w", err)
		}
	}
	return nil
}

// RefreshJoinView rebuilds informacoes_com_cliente_mv: truncate, then
// re-insert in id-keyed batches to bound lock duration and memory. For
// each violation the single most recent realized historico_grades row
// (highest id) with a matching normalized route name and date is joined;
// violations with no realized match keep a NULL schedule_id.
// Returns the number of rows written.
func (d *PostgresDB) RefreshJoinView(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	if _, err := d.pool.Exec(ctx, `TRUNCATE informacoes_com_cliente_mv`); err != nil {
		return 0, fmt.Errorf("truncate join view: %w", err)
	}

	var maxID int64
	if err := d.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM informacoes`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max violation id: %w", err)
	}

	total := 0
	for from := int64(0); from < maxID; from += int64(batchSize) {
		tag, err := d.pool.Exec(ctx, `
			INSERT INTO informacoes_com_cliente_mv (
				id, line_name, route_name, direction, real_vehicle, evidence_url,
				data_execucao, violation_type, schedule_id, real_departure, real_arrival, client_name
			)
			SELECT i.id, i.line_name, i.route_name, i.direction, i.real_vehicle, i.evidence_url,
			       i.data_execucao, i.violation_type, h.id, h.real_departure, h.real_arrival, h.client_name
			FROM informacoes i
			LEFT JOIN LATERAL (
				SELECT hg.id, hg.real_departure, hg.real_arrival, hg.client_name
				FROM historico_grades hg
				WHERE lower(btrim(hg.route_name)) = lower(btrim(i.route_name))
				  AND hg.data_registro = i.data_execucao
				  AND hg.real_departure IS NOT NULL
				ORDER BY hg.id DESC
				LIMIT 1
			) h ON TRUE
			WHERE i.id > $1 AND i.id <= $2`, from, from+int64(batchSize))
		if err != nil {
			return total, fmt.Errorf("rebuild join view batch at %d: %w", from, err)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

// UpdateHeartbeat upserts the single heartbeat row on the dedicated pool.
func (d *PostgresDB) UpdateHeartbeat(ctx context.Context) error {
	_, err := d.heartbeat.Exec(ctx, `
		INSERT INTO ultima_execucao (id, last_execution) VALUES (1, NOW())
		ON CONFLICT (id) DO UPDATE SET last_execution = EXCLUDED.last_execution`)
	return err
}

// LastHeartbeat returns the last recorded execution time, or nil when the
// pipeline has never run.
func (d *PostgresDB) LastHeartbeat(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := d.heartbeat.QueryRow(ctx,
		`SELECT last_execution FROM ultima_execucao WHERE id = 1`).Scan(&t)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ViolationSummary counts violations by classification for a date.
// Unclassified rows are reported under the empty string.
func (d *PostgresDB) ViolationSummary(ctx context.Context, date string) (map[string]int, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT COALESCE(violation_type, ''), COUNT(*)
		FROM informacoes WHERE data_execucao = $1
		GROUP BY violation_type`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

// JoinViewCount returns the current row count of the join view.
func (d *PostgresDB) JoinViewCount(ctx context.Context) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM informacoes_com_cliente_mv`).Scan(&n)
	return n, err
}
