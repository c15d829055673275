package event

// DeviceFingerprint is the static device signature captured once per session.
// Pointer and slice fields are null when the corresponding probe failed.
type DeviceFingerprint struct {
	UserAgent           string   `json:"userAgent"`
	Language            string   `json:"language,omitempty"`
	Languages           []string `json:"languages,omitempty"`
	Platform            string   `json:"platform,omitempty"`
	HardwareConcurrency int      `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        float64  `json:"deviceMemory,omitempty"`
	MaxTouchPoints      int      `json:"maxTouchPoints,omitempty"`
	CookieEnabled       *bool    `json:"cookieEnabled"`
	DoNotTrack          string   `json:"doNotTrack,omitempty"`

	Screen   *ScreenInfo `json:"screen"`
	Viewport *Viewport   `json:"viewport"`

	Timezone       string `json:"timezone,omitempty"`
	TimezoneOffset int    `json:"timezoneOffset"`

	Canvas  *string    `json:"canvas"`
	WebGL   *WebGLInfo `json:"webgl"`
	Fonts   []string   `json:"fonts"`
	Plugins []string   `json:"plugins"`
}

type ScreenInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AvailWidth  int     `json:"availWidth"`
	AvailHeight int     `json:"availHeight"`
	ColorDepth  int     `json:"colorDepth"`
	PixelRatio  float64 `json:"pixelRatio"`
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type WebGLInfo struct {
	Vendor    string `json:"vendor,omitempty"`
	Renderer  string `json:"renderer,omitempty"`
	Version   string `json:"version,omitempty"`
	Signature string `json:"signature,omitempty"`
}
