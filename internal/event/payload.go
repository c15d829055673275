package event

// SessionData carries the truncated channel tails of one flush.
type SessionData struct {
	MouseMovements []MovementSample  `json:"mouseMovements"`
	KeyboardEvents []KeystrokeSample `json:"keyboardEvents"`
	ScrollEvents   []ScrollSample    `json:"scrollEvents"`
	ClickEvents    []ClickSample     `json:"clickEvents"`
	FocusEvents    []FocusSample     `json:"focusEvents"`
	TouchEvents    []TouchSample     `json:"touchEvents"`
	FormEvents     []FormSample      `json:"formEvents"`
}

// Payload is the body of POST /prototype/api/verify.
type Payload struct {
	SessionData SessionData        `json:"sessionData"`
	WebsiteID   string             `json:"websiteId"`
	SessionID   string             `json:"sessionId"`
	Timestamp   int64              `json:"timestamp"`
	UserAgent   string             `json:"userAgent"`
	Metrics     BehaviorMetrics    `json:"metrics"`
	DeviceInfo  *DeviceFingerprint `json:"deviceInfo"`
	Timing      *TimingData        `json:"timing"`
}

// VerifyResponse is the classifier answer. Verification is nil when the
// server omitted it.
type VerifyResponse struct {
	Verification *Verdict `json:"verification"`
}

// Verdict is the verification object as sent by the server. Both fields are
// required for the verdict to be accepted.
type Verdict struct {
	IsBot      *bool    `json:"isBot"`
	Confidence *float64 `json:"confidence"`
	Source     string   `json:"source,omitempty"`
}

// Activation is the body of POST /api/script/activate.
type Activation struct {
	WebsiteURL string `json:"website_url"`
	SessionID  string `json:"session_id"`
	UserAgent  string `json:"user_agent"`
	Timestamp  int64  `json:"timestamp"`
}
