package buffer

import "github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"

// Channel names, also used as metric labels.
const (
	Movement  = "movement"
	Clicks    = "click"
	Keystroke = "keystroke"
	Scrolls   = "scroll"
	Touch     = "touch"
	Focus     = "focus"
	Form      = "form"
)

// Set is one window per capture channel.
type Set struct {
	Movements  *Window[event.MovementSample]
	Clicks     *Window[event.ClickSample]
	Keystrokes *Window[event.KeystrokeSample]
	Scrolls    *Window[event.ScrollSample]
	Touches    *Window[event.TouchSample]
	Focus      *Window[event.FocusSample]
	Forms      *Window[event.FormSample]
}

// NewSet builds a Set with the default bounds.
func NewSet() *Set {
	return &Set{
		Movements:  New[event.MovementSample](MovementBounds),
		Clicks:     New[event.ClickSample](ClickBounds),
		Keystrokes: New[event.KeystrokeSample](KeystrokeBounds),
		Scrolls:    New[event.ScrollSample](ScrollBounds),
		Touches:    New[event.TouchSample](TouchBounds),
		Focus:      New[event.FocusSample](FocusBounds),
		Forms:      New[event.FormSample](FormBounds),
	}
}

// PruneOlderThan prunes every channel and returns the total removed.
func (s *Set) PruneOlderThan(cutoff int64) int {
	return s.Movements.PruneOlderThan(cutoff) +
		s.Clicks.PruneOlderThan(cutoff) +
		s.Keystrokes.PruneOlderThan(cutoff) +
		s.Scrolls.PruneOlderThan(cutoff) +
		s.Touches.PruneOlderThan(cutoff) +
		s.Focus.PruneOlderThan(cutoff) +
		s.Forms.PruneOlderThan(cutoff)
}

// Lens reports the live length of each channel keyed by channel name.
func (s *Set) Lens() map[string]int {
	return map[string]int{
		Movement:  s.Movements.Len(),
		Clicks:    s.Clicks.Len(),
		Keystroke: s.Keystrokes.Len(),
		Scrolls:   s.Scrolls.Len(),
		Touch:     s.Touches.Len(),
		Focus:     s.Focus.Len(),
		Form:      s.Forms.Len(),
	}
}
