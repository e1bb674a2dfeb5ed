package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Listing limits.
const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("history: run not found")

// Run is one invocation of the relay.
type Run struct {
	ID           string
	Endpoint     string
	ClientID     string
	Topic        string
	Policy       string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	MessageCount int64
	Completed    bool
	Error        string
}

// Delivery is one received message stored for a run.
type Delivery struct {
	RunID      string
	Seq        int64
	Topic      string
	Payload    []byte
	QoS        int
	Duplicate  bool
	ReceivedAt time.Time
}

// Repository defines the history store operations.
type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, count int64, completed bool, runErr error) error
	AddDelivery(ctx context.Context, d Delivery) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListDeliveries(ctx context.Context, runID string) ([]Delivery, error)
}

// SQLiteRepository stores history in the relay's SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// CreateRun inserts a run. The ID and StartedAt are generated if empty.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, endpoint, client_id, topic, policy, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Endpoint, run.ClientID, run.Topic, run.Policy,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (r *SQLiteRepository) FinishRun(ctx context.Context, id string, count int64, completed bool, runErr error) error {
	var errText any
	if runErr != nil {
		errText = runErr.Error()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, message_count = ?, completed = ?, error = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), count, completed, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// AddDelivery inserts one delivery.
func (r *SQLiteRepository) AddDelivery(ctx context.Context, d Delivery) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deliveries (run_id, seq, topic, payload, qos, duplicate, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Seq, d.Topic, d.Payload, d.QoS, d.Duplicate,
		d.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, endpoint, client_id, topic, policy, started_at, finished_at,
		        message_count, completed, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		var finishedAt, runErr sql.NullString

		if err := rows.Scan(&run.ID, &run.Endpoint, &run.ClientID, &run.Topic, &run.Policy,
			&startedAt, &finishedAt, &run.MessageCount, &run.Completed, &runErr); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			if run.FinishedAt, err = parseTime(finishedAt.String); err != nil {
				return nil, err
			}
		}
		if runErr.Valid {
			run.Error = runErr.String
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// ListDeliveries returns the deliveries of a run in arrival order.
func (r *SQLiteRepository) ListDeliveries(ctx context.Context, runID string) ([]Delivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, seq, topic, payload, qos, duplicate, received_at
		 FROM deliveries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		var receivedAt string

		if err := rows.Scan(&d.RunID, &d.Seq, &d.Topic, &d.Payload, &d.QoS, &d.Duplicate, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		if d.ReceivedAt, err = parseTime(receivedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}

	return deliveries, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
