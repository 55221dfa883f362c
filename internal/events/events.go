// Package events publishes pipeline milestones to NATS so downstream
// consumers can react without polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects carried on the bus.
const (
	SubjectSyncCompleted        = "fleetsync.sync.completed"
	SubjectViolationsClassified = "fleetsync.violations.classified"
)

// SyncCompleted is the payload for SubjectSyncCompleted.
type SyncCompleted struct {
	Days      int       `json:"days"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	At        time.Time `json:"at"`
}

// ViolationsClassified is the payload for SubjectViolationsClassified.
type ViolationsClassified struct {
	Date  string    `json:"date"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// Publisher sends pipeline events over a NATS connection. The zero value
// and a nil *Publisher are both no-ops, so callers never need to guard.
type Publisher struct {
	nc *nats.Conn
}

// Connect dials the NATS server and returns a Publisher. An empty URL
// returns a no-op publisher and no error.
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return &Publisher{}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("fleetsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}

func (p *Publisher) publish(subject string, v any) error {
	if p == nil || p.nc == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return p.nc.Publish(subject, data)
}

// PublishSyncCompleted announces a finished schedule sync.
func (p *Publisher) PublishSyncCompleted(_ context.Context, days, succeeded, failed int) error {
	return p.publish(SubjectSyncCompleted, SyncCompleted{
		Days: days, Succeeded: succeeded, Failed: failed, At: time.Now().UTC(),
	})
}

// ViolationsClassified announces a classified page of violations.
func (p *Publisher) ViolationsClassified(_ context.Context, date string, count int) error {
	return p.publish(SubjectViolationsClassified, ViolationsClassified{
		Date: date, Count: count, At: time.Now().UTC(),
	})
}
