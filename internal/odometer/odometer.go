// Package odometer back-fills per-trip odometer readings from vehicle
// position history.
package odometer

import (
	"context"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"fleetsync/internal/globalbus"
	"fleetsync/internal/storage"
	"fleetsync/internal/timefmt"
)

// Store is the slice of the relational store the estimator needs.
type Store interface {
	VehiclesMissingOdometer(ctx context.Context) ([]string, error)
	LatestTripOnDate(ctx context.Context, vehicle, date string) (*storage.HistoryTrip, error)
	TripsMissingOdometer(ctx context.Context, vehicle, date string) ([]storage.HistoryTrip, error)
	LastOdometer(ctx context.Context, vehicle, departure string) (float64, error)
	UpdateOdometer(ctx context.Context, vehicle, line, departure, arrival, date string, value float64) error
}

// PositionLister fetches raw vehicle positions for a UTC window.
type PositionLister interface {
	ListPositions(ctx context.Context, vehicle, start, end string) ([]globalbus.Position, error)
}

// Stats counts estimator outcomes for operator reporting.
type Stats struct {
	Vehicles     int
	CarriedOver  int
	Estimated    int
	Approximated int
	Skipped      int
	Failed       int
}

// Estimator fills missing odometer readings. Trips with position
// telemetry get a real distance delta; trips without fall back to the
// planned distance; trips with no telemetry at all are left for the
// next run.
type Estimator struct {
	store   Store
	client  PositionLister
	archive storage.PositionArchive
	now     func() time.Time
}

// New creates an Estimator. archive may be nil to disable raw position
// retention.
func New(store Store, client PositionLister, archive storage.PositionArchive) *Estimator {
	return &Estimator{store: store, client: client, archive: archive, now: time.Now}
}

// Run processes every vehicle that still has unfilled trips: first the
// previous day's dangling trip, then today's trips in departure order.
// Estimates are cumulative, so order matters within a vehicle; vehicles
// are independent of each other.
func (e *Estimator) Run(ctx context.Context) Stats {
	var stats Stats

	vehicles, err := e.store.VehiclesMissingOdometer(ctx)
	if err != nil {
		log.Printf("❌ odometer: load vehicle list: %v", err)
		stats.Failed++
		return stats
	}

	today := timefmt.DateOf(e.now())
	todayStr := today.Format(timefmt.DateOnlyLayout)
	yesterdayStr := today.AddDate(0, 0, -1).Format(timefmt.DateOnlyLayout)

	for _, vehicle := range vehicles {
		stats.Vehicles++
		e.carryForward(ctx, vehicle, yesterdayStr, &stats)
		e.fillToday(ctx, vehicle, todayStr, &stats)
	}

	log.Printf("✅ odometer run finished: %d vehicle(s), %d carried, %d measured, %d approximated, %d skipped, %d failed",
		stats.Vehicles, stats.CarriedOver, stats.Estimated, stats.Approximated, stats.Skipped, stats.Failed)
	return stats
}

// carryForward closes out yesterday's last trip when it never received a
// reading, using the planned distance on top of the prior odometer.
// Without this the day boundary leaves a permanent hole in the series.
func (e *Estimator) carryForward(ctx context.Context, vehicle, date string, stats *Stats) {
	trip, err := e.store.LatestTripOnDate(ctx, vehicle, date)
	if err != nil {
		stats.Failed++
		log.Printf("❌ odometer: latest trip for %s on %s: %v", vehicle, date, err)
		return
	}
	if trip == nil || hasOdometer(trip.Odometer) {
		return
	}

	prior, err := e.store.LastOdometer(ctx, vehicle, trip.RealDeparture)
	if err != nil {
		stats.Failed++
		log.Printf("❌ odometer: prior reading for %s: %v", vehicle, err)
		return
	}

	value := math.Abs(prior + parseDistance(trip.EstimatedDistance))
	if err := e.store.UpdateOdometer(ctx, vehicle, trip.Line, trip.RealDeparture, trip.RealArrival, date, value); err != nil {
		stats.Failed++
		log.Printf("❌ odometer: carry forward %s: %v", vehicle, err)
		return
	}
	stats.CarriedOver++
}

// fillToday estimates each of today's unfilled trips in departure order.
func (e *Estimator) fillToday(ctx context.Context, vehicle, date string, stats *Stats) {
	trips, err := e.store.TripsMissingOdometer(ctx, vehicle, date)
	if err != nil {
		stats.Failed++
		log.Printf("❌ odometer: trips for %s on %s: %v", vehicle, date, err)
		return
	}

	for _, trip := range trips {
		if err := e.fillTrip(ctx, vehicle, date, trip, stats); err != nil {
			stats.Failed++
			log.Printf("❌ odometer: trip %d (%s): %v", trip.ID, vehicle, err)
		}
	}
}

func (e *Estimator) fillTrip(ctx context.Context, vehicle, date string, trip storage.HistoryTrip, stats *Stats) error {
	start, end, err := timefmt.APIWindow(trip.RealDeparture, trip.RealArrival)
	if err != nil {
		return err
	}

	positions, err := e.client.ListPositions(ctx, vehicle, start, end)
	if err != nil {
		return err
	}
	if e.archive != nil && len(positions) > 0 {
		if err := e.archive.ArchivePositions(ctx, vehicle, positions); err != nil {
			log.Printf("❌ odometer: archive positions for %s: %v", vehicle, err)
		}
	}

	samples := odometerSamples(positions)

	prior, err := e.store.LastOdometer(ctx, vehicle, trip.RealDeparture)
	if err != nil {
		return err
	}

	var value float64
	switch {
	case len(samples) >= 2:
		diff := math.Abs(samples[len(samples)-1].value - samples[0].value)
		value = math.Abs(prior + diff)
		stats.Estimated++
	case len(samples) == 1:
		value = math.Abs(prior + parseDistance(trip.EstimatedDistance))
		stats.Approximated++
	default:
		// No telemetry at all; a later run may still see it.
		stats.Skipped++
		return nil
	}

	return e.store.UpdateOdometer(ctx, vehicle, trip.Line, trip.RealDeparture, trip.RealArrival, date, value)
}

type sample struct {
	at    time.Time
	value float64
}

// odometerSamples keeps positions that carry both an odometer value and
// a parseable event time, sorted by event time ascending.
func odometerSamples(positions []globalbus.Position) []sample {
	out := make([]sample, 0, len(positions))
	for _, p := range positions {
		if p.Odometer == nil {
			continue
		}
		at, err := parseEventTime(p.EventDate)
		if err != nil {
			continue
		}
		out = append(out, sample{at: at, value: *p.Odometer})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

var eventLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	timefmt.APIMilliLayout,
	timefmt.UpstreamLayout,
	"2006-01-02T15:04:05",
}

func parseEventTime(s string) (time.Time, error) {
	var err error
	for _, layout := range eventLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func hasOdometer(v *string) bool {
	if v == nil {
		return false
	}
	s := strings.TrimSpace(*v)
	return s != "" && s != "NULL"
}

func parseDistance(v *string) float64 {
	if v == nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
	if err != nil {
		return 0
	}
	return f
}
