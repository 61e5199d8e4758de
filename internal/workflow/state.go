package workflow

import "time"

// State is a step of the upload/report workflow.
type State int

const (
	Idle State = iota
	Uploading
	Uploaded
	ReportFetching
	ReportReady
	PDFFetching
	PDFReady
	Errored
)

var stateNames = [...]string{
	Idle:           "idle",
	Uploading:      "uploading",
	Uploaded:       "uploaded",
	ReportFetching: "report_fetching",
	ReportReady:    "report_ready",
	PDFFetching:    "pdf_fetching",
	PDFReady:       "pdf_ready",
	Errored:        "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// InFlight reports whether s is a state with a request outstanding.
func (s State) InFlight() bool {
	switch s {
	case Uploading, ReportFetching, PDFFetching:
		return true
	default:
		return false
	}
}

// Transition is passed to observers after every state change.
type Transition struct {
	From       State
	To         State
	AnalysisID int64
	Err        error
	At         time.Time
}
