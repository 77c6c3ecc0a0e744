package models

import "time"

// AssetStatus is the stored lifecycle state of a recording's Mux asset.
// A NULL status means the upload is still in flight.
type AssetStatus string

const (
	AssetStatusPreparing AssetStatus = "preparing"
	AssetStatusReady     AssetStatus = "ready"
	AssetStatusErrored   AssetStatus = "errored"
)

// Collection names the table that owns a recording's Mux metadata.
type Collection string

const (
	// CollectionQuestionSubmission holds recordings of answers to job interview questions.
	CollectionQuestionSubmission Collection = "custom_job_question_submission_mux_metadata"
	// CollectionMockInterviewMessage holds recordings of mock interview messages.
	CollectionMockInterviewMessage Collection = "mock_interview_message_mux_metadata"
)

// Collections lists every known collection.
var Collections = []Collection{CollectionQuestionSubmission, CollectionMockInterviewMessage}

// ParseCollection maps a routing tag to a known collection. Unknown tags are rejected.
func ParseCollection(tag string) (Collection, bool) {
	switch Collection(tag) {
	case CollectionQuestionSubmission:
		return CollectionQuestionSubmission, true
	case CollectionMockInterviewMessage:
		return CollectionMockInterviewMessage, true
	}
	return "", false
}

// Table returns the SQL table backing the collection.
func (c Collection) Table() string {
	switch c {
	case CollectionQuestionSubmission:
		return "custom_job_question_submission_mux_metadata"
	case CollectionMockInterviewMessage:
		return "mock_interview_message_mux_metadata"
	}
	return ""
}

// MediaAsset is the Mux metadata row for one submission or mock interview message.
type MediaAsset struct {
	ID         string       `json:"id"`
	AssetID    *string      `json:"asset_id"`
	PlaybackID *string      `json:"playback_id"`
	Status     *AssetStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
