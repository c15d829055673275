package detection

// Signals is the raw server-side view of a submission. It carries
// observations only; scoring belongs to the classifier.
type Signals struct {
	HeaderFingerprint string         `json:"header_fingerprint"`
	Headers           HeaderSignals  `json:"headers"`
	Request           RequestSignals `json:"request"`
	Timing            TimingSignals  `json:"timing"`
}

// HeaderSignals contains header-based observations
type HeaderSignals struct {
	MissingExpected    []string `json:"missing_expected"`
	AutomationHeaders  []string `json:"automation_headers"`
	InconsistentValues []string `json:"inconsistent_values"`
	HeaderOrder        []string `json:"header_order"`
	HeaderCount        int      `json:"header_count"`
}

// RequestSignals contains payload and user-agent observations
type RequestSignals struct {
	PayloadEntropy float64   `json:"payload_entropy"`
	RequestSize    int       `json:"request_size"`
	UserAgent      UASignals `json:"user_agent"`
	UAMismatch     bool      `json:"ua_mismatch"` // header UA differs from the payload's userAgent
}

// UASignals contains user-agent string observations
type UASignals struct {
	Length             int      `json:"length"`
	ContainsAutomation bool     `json:"contains_automation"`
	AutomationKeywords []string `json:"automation_keywords"`
	Platform           string   `json:"platform"`
	Browser            string   `json:"browser"`
}

// TimingSignals describes the spacing between submissions of one session
type TimingSignals struct {
	SubmissionInterval float64 `json:"submission_interval_ms"`
	IntervalPrecision  int     `json:"interval_precision"` // round-number granularity of the interval, 0 if none
	HasPrevious        bool    `json:"has_previous"`
}
