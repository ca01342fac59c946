package statusdoc

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepStatus enumerates the states a pipeline step can be in.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is the recorded state of one pipeline step for one video.
type Step struct {
	Status    StepStatus `json:"status"`
	UpdatedAt time.Time  `json:"updatedAt,omitzero"`
	Notes     string     `json:"notes,omitempty"`
	Path      string     `json:"path,omitempty"`
	SRTPath   string     `json:"srtPath,omitempty"`
	SizeBytes int64      `json:"sizeBytes,omitempty"`
}

// Completed reports whether the step finished successfully.
func (s Step) Completed() bool { return s.Status == StepCompleted }

// Part is one subtitle segment produced by the split step.
type Part struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	SRTPath string  `json:"srtPath"`
}

// SplitStep extends Step with the produced segments.
type SplitStep struct {
	Step
	Parts     []Part `json:"parts,omitempty"`
	CallsPath string `json:"callsPath,omitempty"`
}

// Metrics aggregates storage and runtime figures for one video.
type Metrics struct {
	RuntimeSeconds float64 `json:"runtimeSeconds,omitempty"`
	StorageBytes   int64   `json:"storageBytes,omitempty"`
	Parts          int     `json:"parts,omitempty"`
}

// HistoryEntry records one pipeline event for a video.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Status    string    `json:"status"`
	Workflow  string    `json:"workflow,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Actor     string    `json:"actor,omitempty"`
}

// Video is the per-entity progress record the pipeline workflows maintain.
type Video struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	ChannelID       string          `json:"channelId,omitempty"`
	ChannelTitle    string          `json:"channelTitle,omitempty"`
	SourceURL       string          `json:"sourceUrl,omitempty"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
	CreatedAt       time.Time       `json:"createdAt,omitzero"`
	UpdatedAt       time.Time       `json:"updatedAt,omitzero"`
	Download        Step            `json:"download"`
	Transcription   Step            `json:"transcription"`
	Split           SplitStep       `json:"split"`
	Translations    map[string]Step `json:"translations,omitempty"`
	Metrics         Metrics         `json:"metrics,omitempty"`
	History         []HistoryEntry  `json:"history,omitempty"`
}

// Translation returns the translation step for a language tag, if recorded.
func (v *Video) Translation(lang string) (Step, bool) {
	step, ok := v.Translations[lang]
	return step, ok
}

// HasArtifacts reports whether any pipeline step has produced output worth
// deleting.
func (v *Video) HasArtifacts() bool {
	if v.Download.Completed() || v.Transcription.Completed() || v.Split.Completed() {
		return true
	}
	for _, step := range v.Translations {
		if step.Completed() {
			return true
		}
	}
	return false
}

// Totals mirrors the aggregate counters the workflows recompute on every save.
type Totals struct {
	Videos         int     `json:"videos"`
	Downloaded     int     `json:"downloaded"`
	Transcribed    int     `json:"transcribed"`
	Split          int     `json:"split"`
	TranslatedAr   int     `json:"translatedAr"`
	TranslatedTr   int     `json:"translatedTr"`
	RuntimeSeconds float64 `json:"runtimeSeconds"`
	StorageBytes   int64   `json:"storageBytes"`
}

// JobStat summarises recent runs of one workflow.
type JobStat struct {
	LastRunAt *time.Time `json:"lastRunAt"`
	Success   int        `json:"success"`
	Failed    int        `json:"failed"`
	Running   int        `json:"running"`
	Queued    int        `json:"queued"`
}

// Analytics is the server-computed rollup embedded in the document.
type Analytics struct {
	Totals     Totals             `json:"totals"`
	Jobs       map[string]JobStat `json:"jobs,omitempty"`
	ActiveJobs []string           `json:"activeJobs,omitempty"`
}

// Document is the externally-owned pipeline status snapshot. Capstan only
// reads it; every local copy is replaced wholesale by the next fetch.
type Document struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	Videos    []Video   `json:"videos"`
	Analytics Analytics `json:"analytics,omitzero"`
}

// Video returns the record for the given id, if present.
func (d *Document) Video(id string) (*Video, bool) {
	for i := range d.Videos {
		if d.Videos[i].ID == id {
			return &d.Videos[i], true
		}
	}
	return nil, false
}

// Decode parses a status document fetched from the repository.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode status document: %w", err)
	}
	return &doc, nil
}
