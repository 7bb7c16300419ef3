package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

// JobType constants - different types of worker jobs
const (
	JobTypeEnrichment       = JobType("enrichment")
	JobTypeInstallationSync = JobType("installation_sync")
	JobTypePullRequestSync  = JobType("pull_request_sync")
)

// Job represents a unit of work
type Job struct {
	ID         string                 `json:"id"`
	Type       JobType                `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	UniqueKey  string                 `json:"unique_key,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	Retries    int                    `json:"retries"`
	MaxRetries int                    `json:"max_retries"`
}

// MarshalBinary lets go-redis store a job directly as a list or set member
func (j *Job) MarshalBinary() ([]byte, error) {
	return json.Marshal(j)
}

// FromJSON - Parse JSON string back to Job
func FromJSON(data string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Int64 reads a numeric payload field. Payloads pass through JSON, so numbers
// arrive as float64 after a round trip.
func (j *Job) Int64(key string) (int64, error) {
	v, ok := j.Payload[key]
	if !ok {
		return 0, fmt.Errorf("job %s: missing payload field %q", j.ID, key)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("job %s: payload field %q is %T, not a number", j.ID, key, v)
	}
}

// IntOr reads an optional numeric payload field
func (j *Job) IntOr(key string, fallback int) int {
	if _, ok := j.Payload[key]; !ok {
		return fallback
	}
	n, err := j.Int64(key)
	if err != nil {
		return fallback
	}
	return int(n)
}

// EnrichmentPayload is the decoded payload of an enrichment job
type EnrichmentPayload struct {
	TeamID    int64
	BatchSize int
	Attempt   int
	Chain     int
}

// EnrichmentPayloadOf decodes an enrichment job. BatchSize is zero when the
// job does not override the configured size.
func EnrichmentPayloadOf(job *Job) (EnrichmentPayload, error) {
	teamID, err := job.Int64("team_id")
	if err != nil {
		return EnrichmentPayload{}, err
	}
	return EnrichmentPayload{
		TeamID:    teamID,
		BatchSize: job.IntOr("batch_size", 0),
		Attempt:   job.IntOr("attempt", 0),
		Chain:     job.IntOr("chain", 0),
	}, nil
}

func (p EnrichmentPayload) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"team_id": p.TeamID,
		"attempt": p.Attempt,
		"chain":   p.Chain,
	}
	if p.BatchSize > 0 {
		m["batch_size"] = p.BatchSize
	}
	return m
}

// EnrichmentUniqueKey serializes enrichment per team
func EnrichmentUniqueKey(teamID int64) string {
	return fmt.Sprintf("enrichment:team:%d", teamID)
}
