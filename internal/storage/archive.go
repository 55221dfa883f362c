package storage

import (
	"context"
	"time"

	"fleetsync/internal/globalbus"
)

// PositionArchive receives the raw samples fetched from the position
// history endpoint. Archiving is best-effort: failures are the caller's
// to log, never to abort on.
type PositionArchive interface {
	ArchivePositions(ctx context.Context, vehicle string, samples []globalbus.Position) error
}

// eventDateLayouts are the timestamp shapes the position endpoint has
// been seen returning.
var eventDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
}

// ArchivePositions converts upstream samples and batch-inserts them.
// Samples without a parseable event date are skipped.
func (d *ClickHouseDB) ArchivePositions(ctx context.Context, vehicle string, samples []globalbus.Position) error {
	rows := make([]PositionSample, 0, len(samples))
	for _, p := range samples {
		ts, ok := parseEventDate(p.EventDate)
		if !ok {
			continue
		}
		rows = append(rows, PositionSample{
			Vehicle:   vehicle,
			EventDate: ts,
			Odometer:  p.Odometer,
			Velocity:  p.Velocity,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		})
	}
	return d.InsertPositions(ctx, rows)
}

func parseEventDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
