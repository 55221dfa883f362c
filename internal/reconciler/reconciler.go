// Package reconciler pulls the upstream trip schedule and keeps the
// current-state and historical tables in agreement with it.
package reconciler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"fleetsync/internal/globalbus"
	"fleetsync/internal/storage"
	"fleetsync/internal/timefmt"
)

// Store is the slice of the relational store the reconciler needs.
type Store interface {
	UpsertTripSchedule(ctx context.Context, r storage.TripRecord) error
	UpsertScheduleHistoryBatch(ctx context.Context, date string, rows []storage.TripRecord) error
	DistinctCurrentRouteCodes(ctx context.Context) ([]string, error)
	HistoryRouteCodesOnDate(ctx context.Context, date string) ([]string, error)
	DeleteScheduleHistory(ctx context.Context, code, date string) error
	UpdateHeartbeat(ctx context.Context) error
}

// TripLister lists upstream trips for a calendar date.
type TripLister interface {
	ListTrips(ctx context.Context, day time.Time) ([]globalbus.Trip, error)
}

// Stats counts per-stage outcomes for operator reporting.
type Stats struct {
	Days      int
	Succeeded int
	Failed    int
	Deleted   int
}

// Reconciler syncs the trip schedule for a lookback window of days.
type Reconciler struct {
	store    Store
	client   TripLister
	lookback int
	now      func() time.Time
}

// New creates a Reconciler. Lookback is the number of days to sync,
// today inclusive; values below 1 mean today only.
func New(store Store, client TripLister, lookback int) *Reconciler {
	if lookback < 1 {
		lookback = 1
	}
	return &Reconciler{store: store, client: client, lookback: lookback, now: time.Now}
}

// Sync reconciles each day in the lookback window. One day failing does
// not stop the rest; identical upstream data produces pure updates, so
// re-running is safe.
func (r *Reconciler) Sync(ctx context.Context) Stats {
	var stats Stats
	today := timefmt.DateOf(r.now())

	for i := 0; i < r.lookback; i++ {
		day := today.AddDate(0, 0, -i)
		stats.Days++
		if err := r.syncDay(ctx, day); err != nil {
			stats.Failed++
			log.Printf("❌ schedule sync for %s: %v", day.Format(timefmt.DateOnlyLayout), err)
			continue
		}
		stats.Succeeded++
	}

	if err := r.store.UpdateHeartbeat(ctx); err != nil {
		log.Printf("❌ heartbeat update: %v", err)
	}
	log.Printf("✅ schedule sync finished: %d day(s), %d ok, %d failed",
		stats.Days, stats.Succeeded, stats.Failed)
	return stats
}

// syncDay pulls one day's trips, merges them into the historical table in
// a single multi-row statement, then reconciles the current-state table
// row by row.
func (r *Reconciler) syncDay(ctx context.Context, day time.Time) error {
	trips, err := r.client.ListTrips(ctx, day)
	if err != nil {
		return fmt.Errorf("list trips: %w", err)
	}
	if len(trips) == 0 {
		log.Printf("schedule sync: no trips for %s", day.Format(timefmt.DateOnlyLayout))
		return nil
	}

	date := day.Format(timefmt.DateOnlyLayout)
	rows := make([]storage.TripRecord, 0, len(trips))
	for _, t := range trips {
		if t.RouteIntegrationCode == "" {
			continue
		}
		rows = append(rows, normalizeTrip(t))
	}

	if err := r.store.UpsertScheduleHistoryBatch(ctx, date, rows); err != nil {
		return fmt.Errorf("merge history for %s: %w", date, err)
	}

	for _, rec := range rows {
		if err := r.store.UpsertTripSchedule(ctx, rec); err != nil {
			// One bad record never aborts the batch.
			log.Printf("❌ upsert current state %s: %v", rec.RouteIntegrationCode, err)
		}
	}
	return nil
}

// normalizeTrip converts an upstream trip to its storage form: ISO
// timestamps become locale display strings, the zero-date sentinel
// becomes nil, distances become numeric text.
func normalizeTrip(t globalbus.Trip) storage.TripRecord {
	return storage.TripRecord{
		Line:                 t.LineIntegrationCode,
		EstimatedDeparture:   timefmt.NormalizeUpstream(t.EstimatedDepartureDate),
		EstimatedArrival:     timefmt.NormalizeUpstream(t.EstimatedArrivalDate),
		RealDeparture:        timefmt.NormalizeUpstream(t.RealDepartureDate),
		RealArrival:          timefmt.NormalizeUpstream(t.RealArrivalDate),
		RouteIntegrationCode: t.RouteIntegrationCode,
		RouteName:            t.RouteName,
		DirectionName:        t.DirectionName,
		Shift:                t.Shift,
		EstimatedVehicle:     t.EstimatedVehicle,
		RealVehicle:          t.RealVehicle,
		EstimatedDistance:    formatDistance(t.EstimatedDistance),
		TravelledDistance:    formatDistance(t.TravelledDistance),
		ClientName:           t.ClientName,
	}
}

func formatDistance(v *float64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	return &s
}

// Sweep re-polls a trailing window of days and deletes historical rows
// that upstream has canceled or no longer returns, keeping the history
// from diverging from upstream truth after schedule changes.
func (r *Reconciler) Sweep(ctx context.Context, days int) Stats {
	if days < 1 {
		days = 10
	}
	var stats Stats

	known, err := r.store.DistinctCurrentRouteCodes(ctx)
	if err != nil {
		log.Printf("❌ cancellation sweep: load route codes: %v", err)
		stats.Failed++
		return stats
	}
	knownSet := make(map[string]bool, len(known))
	for _, c := range known {
		knownSet[c] = true
	}

	today := timefmt.DateOf(r.now())
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, -i)
		date := day.Format(timefmt.DateOnlyLayout)
		stats.Days++

		trips, err := r.client.ListTrips(ctx, day)
		if err != nil {
			stats.Failed++
			log.Printf("❌ cancellation sweep: list trips for %s: %v", date, err)
			continue
		}

		present := make(map[string]bool, len(trips))
		var toRemove []string
		for _, t := range trips {
			if t.RouteIntegrationCode == "" {
				continue
			}
			present[t.RouteIntegrationCode] = true
			if t.IsTripCanceled && knownSet[t.RouteIntegrationCode] {
				toRemove = append(toRemove, t.RouteIntegrationCode)
			}
		}

		stored, err := r.store.HistoryRouteCodesOnDate(ctx, date)
		if err != nil {
			stats.Failed++
			log.Printf("❌ cancellation sweep: load history for %s: %v", date, err)
			continue
		}
		for _, code := range stored {
			if !present[code] && knownSet[code] {
				toRemove = append(toRemove, code)
			}
		}

		for _, code := range toRemove {
			if err := r.store.DeleteScheduleHistory(ctx, code, date); err != nil {
				stats.Failed++
				log.Printf("❌ cancellation sweep: delete %s on %s: %v", code, date, err)
				continue
			}
			stats.Deleted++
			log.Printf("cancellation sweep: removed %s on %s", code, date)
		}
		stats.Succeeded++
	}

	log.Printf("✅ cancellation sweep finished: %d day(s), %d row(s) removed", stats.Days, stats.Deleted)
	return stats
}
