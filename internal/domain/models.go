package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// NotSpecified marks a field that was checked and found absent on the page.
const NotSpecified = "Not specified"

// SubmittedLink is a candidate scholarship page waiting for extraction.
type SubmittedLink struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	SubmittedBy   string    `json:"submitted_by,omitempty"`
	SourceContext string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Processed     bool      `json:"processed"`
	ProcessedAt   time.Time `json:"processed_at,omitempty"`
}

// ScholarshipRecord is a catalog entry. Name is unique after NormalizeName.
type ScholarshipRecord struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Deadline     string       `json:"deadline,omitempty"`
	Amount       string       `json:"amount,omitempty"`
	Description  string       `json:"description,omitempty"`
	Requirements Requirements `json:"requirements,omitempty"`
	SourceLink   string       `json:"link,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NameKey returns the dedup key for the record.
func (r ScholarshipRecord) NameKey() string { return NormalizeName(r.Name) }

// Requirements keeps the ordered eligibility lines. On the wire it accepts
// either a single string or an array of strings.
type Requirements []string

// UnmarshalJSON accepts a string, an array of strings or null.
func (r *Requirements) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*r = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*r = cleanLines(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*r = cleanLines([]string{single})
	return nil
}

// String joins the requirements into one line.
func (r Requirements) String() string {
	return strings.Join(r, "; ")
}

func cleanLines(in []string) Requirements {
	out := make(Requirements, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ExtractionResult is the transient shape produced by one extraction call.
// Absent fields hold NotSpecified, never the empty string.
type ExtractionResult struct {
	Name         string       `json:"name"`
	Deadline     string       `json:"deadline"`
	Amount       string       `json:"amount"`
	Description  string       `json:"description"`
	Requirements Requirements `json:"requirements"`
}

// NewExtractionResult returns a result with every field set to NotSpecified.
func NewExtractionResult() ExtractionResult {
	return ExtractionResult{
		Name:        NotSpecified,
		Deadline:    NotSpecified,
		Amount:      NotSpecified,
		Description: NotSpecified,
	}
}

// Specified reports whether a field value carries information.
func Specified(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, NotSpecified)
}

// HasRequirements reports whether any requirement line is present.
func (e ExtractionResult) HasRequirements() bool {
	for _, r := range e.Requirements {
		if Specified(r) {
			return true
		}
	}
	return false
}

// ToRecord converts the extraction into a catalog record, dropping sentinels.
func (e ExtractionResult) ToRecord(sourceLink string) ScholarshipRecord {
	rec := ScholarshipRecord{
		Name:       strings.TrimSpace(e.Name),
		SourceLink: sourceLink,
	}
	if Specified(e.Deadline) {
		rec.Deadline = strings.TrimSpace(e.Deadline)
	}
	if Specified(e.Amount) {
		rec.Amount = strings.TrimSpace(e.Amount)
	}
	if Specified(e.Description) {
		rec.Description = strings.TrimSpace(e.Description)
	}
	for _, r := range e.Requirements {
		if Specified(r) {
			rec.Requirements = append(rec.Requirements, strings.TrimSpace(r))
		}
	}
	return rec
}

// Outcome is the terminal state of one link inside a batch.
type Outcome string

const (
	OutcomeAdded          Outcome = "added"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeFailed         Outcome = "failed"
	OutcomeNotScholarship Outcome = "not_scholarship"
)

// LinkOutcome reports what happened to one link.
type LinkOutcome struct {
	LinkID  string  `json:"link_id"`
	URL     string  `json:"url"`
	Outcome Outcome `json:"outcome"`
	Name    string  `json:"name,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// BatchRun is the transient report of one orchestrated batch.
type BatchRun struct {
	ID             string        `json:"id"`
	RequestedCount int           `json:"requested_count"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Results        []LinkOutcome `json:"results"`
	Errors         []string      `json:"errors,omitempty"`
}

// Summary counts outcomes per bucket.
type Summary struct {
	Total          int `json:"total"`
	Added          int `json:"added"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
	NotScholarship int `json:"not_scholarship"`
}

// Summary aggregates the run's results.
func (b BatchRun) Summary() Summary {
	s := Summary{Total: len(b.Results)}
	for _, r := range b.Results {
		switch r.Outcome {
		case OutcomeAdded:
			s.Added++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		case OutcomeNotScholarship:
			s.NotScholarship++
		}
	}
	return s
}

// StoreResult is returned by LinkStore.Store. A duplicate is not an error.
type StoreResult struct {
	OK     bool   `json:"ok"`
	LinkID string `json:"link_id,omitempty"`
	URL    string `json:"url"`
	Reason string `json:"reason,omitempty"`
}

// Store reasons.
const (
	ReasonDuplicate  = "duplicate"
	ReasonInvalidURL = "invalid_url"
)

// Err is nil for a stored link and ErrDuplicateSubmission for a known URL.
func (r StoreResult) Err() error {
	switch {
	case r.OK:
		return nil
	case r.Reason == ReasonDuplicate:
		return ErrDuplicateSubmission
	default:
		return errors.New("link rejected: " + r.Reason)
	}
}

// UpsertStatus is the outcome of a catalog upsert.
type UpsertStatus string

const (
	UpsertAdded   UpsertStatus = "added"
	UpsertSkipped UpsertStatus = "skipped"
	UpsertError   UpsertStatus = "error"
)

// ReasonAlreadyExists is the skip reason for a known scholarship name.
const ReasonAlreadyExists = "already exists"

// UpsertResult reports the catalog decision for one record.
type UpsertResult struct {
	Status UpsertStatus `json:"status"`
	ID     string       `json:"id,omitempty"`
	Name   string       `json:"name"`
	Reason string       `json:"reason,omitempty"`
}

// Err is nil when the record was added and ErrCatalogConflict when the name
// is already cataloged.
func (r UpsertResult) Err() error {
	switch r.Status {
	case UpsertAdded:
		return nil
	case UpsertSkipped:
		return ErrCatalogConflict
	default:
		return errors.New("upsert failed: " + r.Reason)
	}
}

// RemoveResult lists records deleted by one sweep.
type RemoveResult struct {
	RemovedCount int                 `json:"removed_count"`
	Removed      []ScholarshipRecord `json:"removed"`
}

// SearchQuery filters catalog records. MinAmount is free text; if it does
// not parse as a number the amount filter is ignored.
type SearchQuery struct {
	Name      string
	MinAmount string
	Limit     int
}
