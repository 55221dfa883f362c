// Package violations ingests route non-conformity reports and
// classifies each one against the vehicle's recorded positions.
package violations

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"fleetsync/internal/globalbus"
	"fleetsync/internal/storage"
	"fleetsync/internal/timefmt"
)

// Verdicts written to informacoes.violation_type.
const (
	VerdictSpeed = "Speed Exceeded"
	VerdictRoute = "Route Deviation"
)

// speedLimitKmh is the threshold above which any single position sample
// turns the verdict into a speeding violation.
const speedLimitKmh = 70.0

// Store is the slice of the relational store the classifier needs.
type Store interface {
	InsertViolation(ctx context.Context, v storage.ViolationRow) (bool, error)
	UnclassifiedViolationPage(ctx context.Context, lastID int64, limit int, today string) ([]storage.JoinRow, error)
	ScheduleHistoryExists(ctx context.Context, id int64) (bool, error)
	ApplyClassifications(ctx context.Context, results []storage.Classification) error
}

// Upstream is the slice of the fleet API the classifier needs.
type Upstream interface {
	ListNonConformities(ctx context.Context, day time.Time) ([]globalbus.NonConformity, error)
	ListPositions(ctx context.Context, vehicle, start, end string) ([]globalbus.Position, error)
}

// Notifier receives a message after each classified page. Implementations
// must tolerate being called with count zero.
type Notifier interface {
	ViolationsClassified(ctx context.Context, date string, count int) error
}

// Stats counts classifier outcomes for operator reporting.
type Stats struct {
	Fetched      int
	Inserted     int
	Classified   int
	Inconsistent int
	Failed       int
}

// Options tunes the classifier.
type Options struct {
	// Workers bounds concurrent position lookups per page. Values below
	// 1 mean serial.
	Workers int
	// PageSize is the number of view rows classified per batch.
	PageSize int
	// EvidenceHost, when set, replaces the host of every evidence URL.
	EvidenceHost string
	// SerialDelay is slept between rows when Workers is 1, easing load
	// on the upstream API.
	SerialDelay time.Duration
}

// Classifier runs the two-stage violation pipeline: ingest raw reports,
// then classify them against position telemetry.
type Classifier struct {
	store  Store
	client Upstream
	notify Notifier
	opts   Options
	now    func() time.Time
}

// New creates a Classifier. notify may be nil.
func New(store Store, client Upstream, notify Notifier, opts Options) *Classifier {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	return &Classifier{store: store, client: client, notify: notify, opts: opts, now: time.Now}
}

// Ingest pulls today's non-conformity reports and records the new ones.
// The (route, date) key dedupes re-runs; reports without a route name
// cannot ever be joined to a schedule and are dropped up front.
func (c *Classifier) Ingest(ctx context.Context) Stats {
	var stats Stats
	day := timefmt.DateOf(c.now())
	date := day.Format(timefmt.DateOnlyLayout)

	reports, err := c.client.ListNonConformities(ctx, day)
	if err != nil {
		stats.Failed++
		log.Printf("❌ violation ingest: list reports: %v", err)
		return stats
	}
	stats.Fetched = len(reports)

	for _, rep := range reports {
		if rep.RouteName == "" {
			continue
		}
		inserted, err := c.store.InsertViolation(ctx, storage.ViolationRow{
			LineName:      rep.LineName,
			RouteName:     rep.RouteName,
			Direction:     rep.Direction,
			RealVehicle:   rep.RealVehicle,
			EvidenceURL:   rewriteEvidenceURL(rep.EvidenceURL, c.opts.EvidenceHost),
			ExecutionDate: date,
		})
		if err != nil {
			stats.Failed++
			log.Printf("❌ violation ingest: insert %s: %v", rep.RouteName, err)
			continue
		}
		if inserted {
			stats.Inserted++
		}
	}

	log.Printf("✅ violation ingest finished: %d fetched, %d new", stats.Fetched, stats.Inserted)
	return stats
}

// rewriteEvidenceURL swaps the URL host for the public-facing one,
// keeping scheme, path and query intact. Unparseable or relative URLs
// pass through unchanged.
func rewriteEvidenceURL(raw, host string) string {
	if host == "" || raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Host = host
	return u.String()
}

// Classify walks the join view in id order and writes a verdict for
// every pending row. Rows whose violation never matched a realized
// schedule are marked inconsistent rather than guessed at; rows marked
// inconsistent earlier today are re-offered by the store in case the
// schedule arrived since.
func (c *Classifier) Classify(ctx context.Context) Stats {
	var stats Stats
	today := timefmt.DateOf(c.now()).Format(timefmt.DateOnlyLayout)

	var lastID int64
	for {
		page, err := c.store.UnclassifiedViolationPage(ctx, lastID, c.opts.PageSize, today)
		if err != nil {
			stats.Failed++
			log.Printf("❌ violation classify: load page after id %d: %v", lastID, err)
			break
		}
		if len(page) == 0 {
			break
		}
		lastID = page[len(page)-1].ID

		results := c.classifyPage(ctx, page, &stats)
		if err := c.store.ApplyClassifications(ctx, results); err != nil {
			stats.Failed++
			log.Printf("❌ violation classify: apply page: %v", err)
			break
		}

		if c.notify != nil && len(results) > 0 {
			if err := c.notify.ViolationsClassified(ctx, today, len(results)); err != nil {
				log.Printf("❌ violation classify: publish event: %v", err)
			}
		}
		if len(page) < c.opts.PageSize {
			break
		}
	}

	log.Printf("✅ violation classify finished: %d classified, %d inconsistent, %d failed",
		stats.Classified, stats.Inconsistent, stats.Failed)
	return stats
}

// classifyPage produces one verdict per row, looking up positions with a
// bounded worker pool. Results land in a slice indexed by row position,
// so no locking is needed; the caller persists them in one batch.
func (c *Classifier) classifyPage(ctx context.Context, page []storage.JoinRow, stats *Stats) []storage.Classification {
	verdicts := make([]string, len(page))
	sem := make(chan struct{}, c.opts.Workers)
	var wg sync.WaitGroup

	for i := range page {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			verdicts[i] = c.classifyRow(ctx, page[i])
			if c.opts.Workers == 1 && c.opts.SerialDelay > 0 {
				time.Sleep(c.opts.SerialDelay)
			}
		}(i)
	}
	wg.Wait()

	results := make([]storage.Classification, 0, len(page))
	for i, row := range page {
		if verdicts[i] == "" {
			stats.Failed++
			continue
		}
		if verdicts[i] == storage.ViolationInconsistent {
			stats.Inconsistent++
		} else {
			stats.Classified++
		}
		results = append(results, storage.Classification{ID: row.ID, Type: verdicts[i]})
	}
	return results
}

// classifyRow returns the verdict for one row, or "" on transient error
// so the row stays pending for the next run.
func (c *Classifier) classifyRow(ctx context.Context, row storage.JoinRow) string {
	if row.ScheduleID == nil || row.RealVehicle == nil || row.RealDeparture == nil || row.RealArrival == nil {
		return storage.ViolationInconsistent
	}

	// The join view is rebuilt on a schedule, so the underlying row may
	// have been swept since.
	exists, err := c.store.ScheduleHistoryExists(ctx, *row.ScheduleID)
	if err != nil {
		log.Printf("❌ violation classify: check schedule %d: %v", *row.ScheduleID, err)
		return ""
	}
	if !exists {
		return storage.ViolationInconsistent
	}

	start, end, err := timefmt.APIWindow(*row.RealDeparture, *row.RealArrival)
	if err != nil {
		log.Printf("❌ violation classify: trip window for row %d: %v", row.ID, err)
		return storage.ViolationInconsistent
	}

	positions, err := c.client.ListPositions(ctx, *row.RealVehicle, start, end)
	if err != nil {
		log.Printf("❌ violation classify: positions for %s: %v", *row.RealVehicle, err)
		return ""
	}
	return classifyPositions(positions)
}

// classifyPositions applies the verdict rule: a single sample over the
// speed limit makes it a speeding violation, anything else is a route
// deviation. No telemetry also means route deviation, matching the
// report that triggered the row.
func classifyPositions(positions []globalbus.Position) string {
	for _, p := range positions {
		if p.Velocity > speedLimitKmh {
			return VerdictSpeed
		}
	}
	return VerdictRoute
}
