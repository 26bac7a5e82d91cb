package pipeline

// URLPrefix marks check content that is a website address rather than text.
const URLPrefix = "URL: "

const (
	// MinExtractedChars is the shortest rendered page text accepted from a URL.
	MinExtractedChars = 100
	// MinContentChars is the shortest normalized content sent to the model.
	MinContentChars = 50
)

// CheckRequest is one document to check.
type CheckRequest struct {
	Content     string `json:"text"`
	RequesterID string `json:"userId"`
}

// Failure classifies an unsuccessful CheckResult for transport status mapping.
type Failure int

const (
	FailureNone Failure = iota
	FailureValidation
	FailureModel
	FailureInternal
)

// CheckResult is the outcome of a check. Exactly one of ReportText and
// ErrorMessage is set.
type CheckResult struct {
	Success      bool    `json:"success"`
	ReportText   string  `json:"result,omitempty"`
	ErrorMessage string  `json:"error,omitempty"`
	JobID        string  `json:"jobId,omitempty"`
	Failure      Failure `json:"-"`
}

// ValidationError reports input the pipeline refuses to send to the model.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func failed(class Failure, msg string) CheckResult {
	return CheckResult{ErrorMessage: msg, Failure: class}
}
