package domain

import "time"

type CommandAction string

const (
	ActionStart  CommandAction = "start"
	ActionResume CommandAction = "resume"
)

// RunCommand is the unit of work handed from the API to a pipeline worker.
// Start commands carry the full request; resume commands only the id.
type RunCommand struct {
	Action           CommandAction `json:"action"`
	RequestID        string        `json:"request_id"`
	CountryID        string        `json:"country_id,omitempty"`
	CountryNameLocal string        `json:"country_name_local,omitempty"`
	VisaType         string        `json:"visa_type,omitempty"`
	Travelers        []Traveler    `json:"travelers,omitempty"`
	Documents        []Document    `json:"documents,omitempty"`

	// EnqueuedAt is stamped by the queue on publish; workers use it to
	// measure pickup lag.
	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

// ImageInfo is what the photo rules need from an image file.
type ImageInfo struct {
	Width  int
	Height int
	Color  bool
}
