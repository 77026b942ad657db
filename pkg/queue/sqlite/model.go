package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/queuectl/queuectl/pkg/queue"
)

// timeLayout is the ISO-8601 form used for created_at/updated_at text
// columns. Existing databases written by earlier tooling parse the same way.
const timeLayout = time.RFC3339Nano

// jobRecord mirrors one row of the jobs table. Field-by-field
// conversion is explicit and total in both directions; a row that does
// not parse is an error, never a partially defaulted job.
type jobRecord struct {
	ID         string
	Command    string
	State      string
	Attempts   int
	MaxRetries int
	CreatedAt  string
	UpdatedAt  string
	LastError  sql.NullString
}

func toRecord(job *queue.Job) jobRecord {
	record := jobRecord{
		ID:         job.ID,
		Command:    job.Command,
		State:      string(job.State),
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		CreatedAt:  job.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:  job.UpdatedAt.UTC().Format(timeLayout),
	}
	if job.LastError != "" {
		record.LastError = sql.NullString{String: job.LastError, Valid: true}
	}
	return record
}

func fromRecord(record jobRecord) (*queue.Job, error) {
	state, err := queue.ParseState(record.State)
	if err != nil {
		return nil, err
	}

	createdAt, err := parseTimestamp(record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: job %s created_at: %v", queue.ErrValidation, record.ID, err)
	}
	updatedAt, err := parseTimestamp(record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: job %s updated_at: %v", queue.ErrValidation, record.ID, err)
	}

	job := &queue.Job{
		ID:         record.ID,
		Command:    record.Command,
		State:      state,
		Attempts:   record.Attempts,
		MaxRetries: record.MaxRetries,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
	if record.LastError.Valid {
		job.LastError = record.LastError.String
	}
	return job, nil
}

// parseTimestamp accepts RFC3339Nano and the second-precision RFC3339
// form older rows may carry.
func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(timeLayout, value)
	if err == nil {
		return ts.UTC(), nil
	}
	ts, fallbackErr := time.Parse(time.RFC3339, value)
	if fallbackErr != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
