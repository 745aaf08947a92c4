// Package document implements upload, listing, retrieval, update, and
// delete of documents, plus OCR artifact retrieval endpoints that read
// blobs written by the OCR worker.
package document

import "time"

// State is a document's position in the upload -> OCR -> LLM pipeline.
// State is monotone forward except for worker retries, which reset to the
// subordinate "processing" state.
type State string

const (
	StateUploaded      State = "uploaded"
	StateOCRProcessing State = "ocr_processing"
	StateOCRCompleted  State = "ocr_completed"
	StateOCRFailed     State = "ocr_failed"
	StateLLMProcessing State = "llm_processing"
	StateLLMCompleted  State = "llm_completed"
	StateLLMFailed     State = "llm_failed"
)

// stateRank orders pipeline states so callers can compare progress with
// ">=" instead of matching exact states (workers skip re-processing a
// document that has already reached or passed their stage).
var stateRank = map[State]int{
	StateUploaded:      0,
	StateOCRProcessing: 1,
	StateOCRFailed:     1,
	StateOCRCompleted:  2,
	StateLLMProcessing: 3,
	StateLLMFailed:     3,
	StateLLMCompleted:  4,
}

// AtLeast reports whether s has reached or passed other in the pipeline.
func (s State) AtLeast(other State) bool {
	return stateRank[s] >= stateRank[other]
}

// Document is a single uploaded file and its pipeline state.
type Document struct {
	ID             string
	OrganizationID string
	UserFileName   string
	BlobName       string
	UploadDate     time.Time
	UploadedBy     string
	State          State
	TagIDs         []string
	Metadata       map[string]string
	NPages         int
	OCRDate        *time.Time
}
