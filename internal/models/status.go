package models

import "time"

// RebuildResult summarizes a completed full rebuild.
type RebuildResult struct {
	Indexed  int           `json:"indexed"`
	Duration time.Duration `json:"duration"`
	// EmbeddingCacheError is set when the index was swapped but the cached
	// embedding column could not be refreshed.
	EmbeddingCacheError string `json:"embedding_cache_error,omitempty"`
}

// JobStatus is the state of a background rebuild.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// RebuildJob records one background rebuild.
type RebuildJob struct {
	ID         string         `json:"id"`
	Status     JobStatus      `json:"status"`
	Trigger    string         `json:"trigger,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Result     *RebuildResult `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// IndexStats describes the published vector index.
type IndexStats struct {
	Type     string    `json:"type"`
	Entries  int       `json:"entries"`
	Built    bool      `json:"built"`
	LoadedAt time.Time `json:"loaded_at"`
	Path     string    `json:"path"`

	// FAISSAvailable reports whether the faiss index type is compiled in.
	FAISSAvailable bool `json:"faiss_available"`
}

// Status is the service status report.
type Status struct {
	Books           int64       `json:"books"`
	IndexableBooks  int64       `json:"indexable_books"`
	SearchAvailable bool        `json:"search_available"`
	Index           IndexStats  `json:"index"`
	Dimensions      int         `json:"embedding_dimensions"`
	DiskUsageBytes  *int64      `json:"disk_usage_bytes,omitempty"`
	LastRebuild     *RebuildJob `json:"last_rebuild,omitempty"`
}
