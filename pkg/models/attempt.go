package models

// AttemptOutcome tags how a single generation attempt ended.
type AttemptOutcome string

const (
	// OutcomeExtractionFailed means no usable statement came out of the
	// generated text.
	OutcomeExtractionFailed AttemptOutcome = "extraction_failed"
	// OutcomeSecurityRejected means the statement was extracted but a
	// security layer refused it.
	OutcomeSecurityRejected AttemptOutcome = "security_rejected"
	// OutcomeExecuted means the statement reached the database
	// (successfully or not).
	OutcomeExecuted AttemptOutcome = "executed"
)

// GenerationAttempt records one generate-extract-validate-execute cycle.
type GenerationAttempt struct {
	// Index is 1-based.
	Index int `json:"index"`

	Prompt      string `json:"prompt"`
	RawResponse string `json:"raw_response"`

	// Statement is the extracted SQL; empty if extraction failed. After a
	// passing validation it holds the rewritten (LIMIT-normalized) form.
	Statement string `json:"statement,omitempty"`

	Outcome AttemptOutcome `json:"outcome"`

	// Err is the failure that ended this attempt, nil on success.
	Err error `json:"-"`
}
