package event

// Raw interaction event names understood by the collector.
const (
	MouseMove        = "mousemove"
	PointerMove      = "pointermove"
	Click            = "click"
	KeyDown          = "keydown"
	KeyUp            = "keyup"
	Scroll           = "scroll"
	TouchStart       = "touchstart"
	TouchMove        = "touchmove"
	TouchEnd         = "touchend"
	Focus            = "focus"
	Blur             = "blur"
	Input            = "input"
	Change           = "change"
	Submit           = "submit"
	VisibilityChange = "visibilitychange"
	PageHide         = "pagehide"
	BeforeUnload     = "beforeunload"
	DOMContentLoaded = "DOMContentLoaded"
)

// VerificationEvent is the host-visible event carrying the last verdict.
const VerificationEvent = "passiveCaptchaVerification"

// RawEvent is a host interaction event before sampling. Fields that do not
// apply to an event type are left zero.
type RawEvent struct {
	Type string
	// Time is the host timestamp. Zero means "stamp on arrival".
	Time int64 // unix ms

	X, Y     float64 // client coordinates / scroll offsets
	Pressure float64
	Button   int
	Target   string // tag name or element role, never element content

	Key       string // used only to classify the key, never recorded
	Alt       bool
	Ctrl      bool
	Meta      bool
	Shift     bool
	Repeat    bool
	Touches   int
	FieldType string

	Hidden bool // visibilitychange: document.hidden after the change
}

// --- Samples ---

// Stamped is implemented by every buffered sample.
type Stamped interface {
	Stamp() int64
}

type MovementSample struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Timestamp    int64   `json:"timestamp"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	Pressure     float64 `json:"pressure"`
	DeltaTime    float64 `json:"deltaTime"`
}

func (s MovementSample) Stamp() int64 { return s.Timestamp }

type ClickSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Button    int     `json:"button"`
	Target    string  `json:"target,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

func (s ClickSample) Stamp() int64 { return s.Timestamp }

type KeystrokeSample struct {
	Type      string  `json:"type"`     // keydown | keyup
	KeyClass  string  `json:"keyClass"` // char | digit | space | enter | backspace | nav | modifier | other
	Modifiers int     `json:"modifiers,omitempty"`
	Repeat    bool    `json:"repeat,omitempty"`
	Dwell     float64 `json:"dwell,omitempty"` // keyup: ms since matching keydown
	Timestamp int64   `json:"timestamp"`
}

func (s KeystrokeSample) Stamp() int64 { return s.Timestamp }

type ScrollSample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Delta     float64 `json:"delta"`
	Velocity  float64 `json:"velocity"`
	DeltaTime float64 `json:"deltaTime"`
	Timestamp int64   `json:"timestamp"`
}

func (s ScrollSample) Stamp() int64 { return s.Timestamp }

type TouchSample struct {
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Touches   int     `json:"touches"`
	Force     float64 `json:"force"`
	Timestamp int64   `json:"timestamp"`
}

func (s TouchSample) Stamp() int64 { return s.Timestamp }

type FocusSample struct {
	Type      string `json:"type"` // focus | blur
	Target    string `json:"target,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (s FocusSample) Stamp() int64 { return s.Timestamp }

type FormSample struct {
	Type      string `json:"type"` // input | change | submit
	Target    string `json:"target,omitempty"`
	FieldType string `json:"fieldType,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (s FormSample) Stamp() int64 { return s.Timestamp }

// --- Derived ---

type BehaviorMetrics struct {
	MouseEntropy      float64 `json:"mouseEntropy"`
	KeyboardRhythm    float64 `json:"keyboardRhythm"`
	ScrollConsistency float64 `json:"scrollConsistency"`
	HumanLikelihood   float64 `json:"humanLikelihood"`
}

type TimingData struct {
	PageLoadTime     float64  `json:"pageLoadTime"`
	DOMReadyTime     float64  `json:"domReadyTime"`
	FirstInteraction *float64 `json:"firstInteraction"` // ms since page origin, null until the first pointer/key event
	TimeOnPage       float64  `json:"timeOnPage"`
}

// VerificationResult is the last verdict. FailOpen marks a locally
// synthesized default used when no verdict could be obtained.
type VerificationResult struct {
	IsBot      bool    `json:"isBot"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
	FailOpen   bool    `json:"failOpen,omitempty"`
}
