// Package progress defines the event structures emitted by the pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageFetchDone    Stage = "FETCH_DONE"
	StageClassifyDone Stage = "CLASSIFY_DONE"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
)

// Event captures a single milestone of pipeline progress.
type Event struct {
	// JobID uniquely identifies a job run using the 16-byte UUID form.
	JobID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or classification milestone occurred.
	Stage Stage
	// Topic is the search topic the job was submitted for.
	Topic string
	// Articles carries the article count for fetch and completion events.
	Articles int64
	// Relevance holds the assigned label for a successful classification.
	Relevance string
	// Failed marks a per-article classification failure.
	Failed bool
	// Dur captures execution latency for adapter calls and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == [16]byte{} {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageFetchDone:
		if e.Articles < 0 {
			return errors.New("fetch done requires a non-negative article count")
		}
	case StageClassifyDone:
		if !e.Failed && e.Relevance == "" {
			return errors.New("classify done requires a relevance label or failure marker")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobUUID converts the binary job ID to uuid.UUID for sinks.
func (e Event) JobUUID() uuid.UUID {
	return uuid.UUID(e.JobID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
