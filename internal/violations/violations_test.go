package violations

import (
	"context"
	"testing"
	"time"

	"fleetsync/internal/globalbus"
	"fleetsync/internal/storage"
)

// fakeStore serves canned join-view pages and records verdicts.
type fakeStore struct {
	inserted []storage.ViolationRow
	pages    [][]storage.JoinRow
	pageIdx  int
	existing map[int64]bool
	applied  []storage.Classification
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[int64]bool)}
}

func (f *fakeStore) InsertViolation(ctx context.Context, v storage.ViolationRow) (bool, error) {
	for _, prev := range f.inserted {
		if prev.RouteName == v.RouteName && prev.ExecutionDate == v.ExecutionDate {
			return false, nil
		}
	}
	f.inserted = append(f.inserted, v)
	return true, nil
}

func (f *fakeStore) UnclassifiedViolationPage(ctx context.Context, lastID int64, limit int, today string) ([]storage.JoinRow, error) {
	if f.pageIdx >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.pageIdx]
	f.pageIdx++
	return page, nil
}

func (f *fakeStore) ScheduleHistoryExists(ctx context.Context, id int64) (bool, error) {
	return f.existing[id], nil
}

func (f *fakeStore) ApplyClassifications(ctx context.Context, results []storage.Classification) error {
	f.applied = append(f.applied, results...)
	return nil
}

// fakeUpstream serves canned reports and per-vehicle positions.
type fakeUpstream struct {
	reports   []globalbus.NonConformity
	positions map[string][]globalbus.Position
}

func (f *fakeUpstream) ListNonConformities(ctx context.Context, day time.Time) ([]globalbus.NonConformity, error) {
	return f.reports, nil
}

func (f *fakeUpstream) ListPositions(ctx context.Context, vehicle, start, end string) ([]globalbus.Position, error) {
	return f.positions[vehicle], nil
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
}

func ptrS(s string) *string { return &s }
func ptrI(v int64) *int64   { return &v }

func joinRow(id int64, scheduleID *int64, vehicle string) storage.JoinRow {
	return storage.JoinRow{
		ID:            id,
		RouteName:     "Downtown Express",
		RealVehicle:   ptrS(vehicle),
		RealDeparture: ptrS("15/03/2025 06:30:00"),
		RealArrival:   ptrS("15/03/2025 07:45:00"),
		ScheduleID:    scheduleID,
	}
}

func TestClassifyPositions(t *testing.T) {
	tests := []struct {
		name      string
		positions []globalbus.Position
		want      string
	}{
		{"no telemetry", nil, VerdictRoute},
		{"all under limit", []globalbus.Position{{Velocity: 45}, {Velocity: 70}}, VerdictRoute},
		{"one over limit", []globalbus.Position{{Velocity: 45}, {Velocity: 85}, {Velocity: 30}}, VerdictSpeed},
		{"exactly at limit stays route", []globalbus.Position{{Velocity: 70}}, VerdictRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyPositions(tt.positions); got != tt.want {
				t.Errorf("classifyPositions = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewriteEvidenceURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		host string
		want string
	}{
		{
			"host swapped, path and query kept",
			"https://internal.example.com/evidence/123?trip=9",
			"evidence.example.org",
			"https://evidence.example.org/evidence/123?trip=9",
		},
		{"empty host passes through", "https://internal.example.com/e/1", "", "https://internal.example.com/e/1"},
		{"relative URL passes through", "/evidence/123", "evidence.example.org", "/evidence/123"},
		{"empty URL passes through", "", "evidence.example.org", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewriteEvidenceURL(tt.raw, tt.host); got != tt.want {
				t.Errorf("rewriteEvidenceURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIngestSkipsAndDedupes(t *testing.T) {
	store := newFakeStore()
	client := &fakeUpstream{reports: []globalbus.NonConformity{
		{RouteName: "Downtown Express", LineName: "L1", RealVehicle: "BUS1"},
		{RouteName: ""}, // never joinable, dropped
		{RouteName: "Downtown Express", LineName: "L1"}, // duplicate key
		{RouteName: "Airport Shuttle", LineName: "L2"},
	}}

	c := New(store, client, nil, Options{})
	c.now = fixedNow
	stats := c.Ingest(context.Background())

	if stats.Fetched != 4 {
		t.Errorf("Fetched = %d, want 4", stats.Fetched)
	}
	if stats.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", stats.Inserted)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("stored %d rows, want 2", len(store.inserted))
	}
	if store.inserted[0].ExecutionDate != "2025-03-15" {
		t.Errorf("ExecutionDate = %q", store.inserted[0].ExecutionDate)
	}
}

func TestClassifyVerdicts(t *testing.T) {
	store := newFakeStore()
	store.existing[10] = true
	store.existing[11] = true
	store.pages = [][]storage.JoinRow{{
		joinRow(1, ptrI(10), "FAST"),
		joinRow(2, ptrI(11), "SLOW"),
		joinRow(3, nil, "NOSCHED"), // never matched a schedule
	}}

	client := &fakeUpstream{positions: map[string][]globalbus.Position{
		"FAST": {{Velocity: 92}},
		"SLOW": {{Velocity: 40}},
	}}

	c := New(store, client, nil, Options{Workers: 3})
	c.now = fixedNow
	stats := c.Classify(context.Background())

	if stats.Classified != 2 || stats.Inconsistent != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	got := make(map[int64]string)
	for _, r := range store.applied {
		got[r.ID] = r.Type
	}
	if got[1] != VerdictSpeed {
		t.Errorf("row 1 = %q, want %q", got[1], VerdictSpeed)
	}
	if got[2] != VerdictRoute {
		t.Errorf("row 2 = %q, want %q", got[2], VerdictRoute)
	}
	if got[3] != storage.ViolationInconsistent {
		t.Errorf("row 3 = %q, want inconsistent", got[3])
	}
}

func TestClassifySweptScheduleGoesInconsistent(t *testing.T) {
	store := newFakeStore()
	// Schedule 10 was swept after the view refresh.
	store.pages = [][]storage.JoinRow{{joinRow(1, ptrI(10), "BUS1")}}
	client := &fakeUpstream{}

	c := New(store, client, nil, Options{})
	c.now = fixedNow
	stats := c.Classify(context.Background())

	if stats.Inconsistent != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(store.applied) != 1 || store.applied[0].Type != storage.ViolationInconsistent {
		t.Errorf("applied = %v", store.applied)
	}
}

// notifyCount records classified-event publications.
type notifyCount struct {
	calls int
	total int
}

func (n *notifyCount) ViolationsClassified(ctx context.Context, date string, count int) error {
	n.calls++
	n.total += count
	return nil
}

func TestClassifyPaginatesAndNotifies(t *testing.T) {
	store := newFakeStore()
	store.existing[10] = true
	store.existing[11] = true
	store.existing[12] = true
	store.pages = [][]storage.JoinRow{
		{joinRow(1, ptrI(10), "BUS1"), joinRow(2, ptrI(11), "BUS1")},
		{joinRow(3, ptrI(12), "BUS1")},
	}
	client := &fakeUpstream{positions: map[string][]globalbus.Position{
		"BUS1": {{Velocity: 40}},
	}}
	notify := &notifyCount{}

	c := New(store, client, notify, Options{Workers: 2, PageSize: 2})
	c.now = fixedNow
	stats := c.Classify(context.Background())

	if stats.Classified != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if notify.calls != 2 || notify.total != 3 {
		t.Errorf("notify calls=%d total=%d, want 2/3", notify.calls, notify.total)
	}
}
