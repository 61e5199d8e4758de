package execal

// Credentials are sent to the register and login endpoints and never stored.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Report is the display-ready text of an analysis report.
type Report struct {
	AnalysisID int64
	Body       string
}

// ReportPDF is the rendered report document. It is not cached.
type ReportPDF struct {
	AnalysisID int64
	Bytes      []byte
}

// HistoryEntry is one analysis from GET /upload/history.
type HistoryEntry struct {
	ID     int64  `json:"id"`
	Date   string `json:"date"`
	Status string `json:"status"`
	Source string `json:"source"`
	Format string `json:"format"`
}

// ReferenceTest is a lab test with its reference range from GET /tests/list.
type ReferenceTest struct {
	Name   string   `json:"name"`
	RefMin *float64 `json:"ref_min"`
	RefMax *float64 `json:"ref_max"`
	Units  string   `json:"units"`
}

// Consultation is the response of POST /consultation/request.
type Consultation struct {
	Status  string `json:"status"`
	Details string `json:"details"`
	UserID  int64  `json:"user_id"`
}
