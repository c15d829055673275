// Package fingerprint collects the static device signature once per session.
package fingerprint

import "github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"

// Navigator holds the navigator-level attributes.
type Navigator struct {
	UserAgent           string
	Language            string
	Languages           []string
	Platform            string
	HardwareConcurrency int
	DeviceMemory        float64
	MaxTouchPoints      int
	CookieEnabled       bool
	DoNotTrack          string
}

// WebGLRaw is what the WebGL probe reports before reduction.
type WebGLRaw struct {
	Vendor     string
	Renderer   string
	Version    string
	Extensions []string
}

// NavigationTiming holds page-load milestones in ms since the page origin.
type NavigationTiming struct {
	PageLoad float64
	DOMReady float64
}

// Probes is implemented by the host. Each method is called at most once per
// session and may fail or panic independently of the others.
type Probes interface {
	Navigator() (Navigator, error)
	Screen() (event.ScreenInfo, error)
	Viewport() (event.Viewport, error)
	Timezone() (name string, offsetMinutes int, err error)
	Canvas() ([]byte, error)
	WebGL() (WebGLRaw, error)
	Fonts() ([]string, error)
	Plugins() ([]string, error)
	Timing() (NavigationTiming, error)
}

// Static is a fixed Probes implementation for tests and replays. A non-nil
// entry in Errs makes the probe of that name fail.
type Static struct {
	NavigatorInfo  Navigator
	ScreenInfo     event.ScreenInfo
	ViewportSize   event.Viewport
	TimezoneName   string
	TimezoneOffset int
	CanvasData     []byte
	WebGLInfo      WebGLRaw
	FontList       []string
	PluginList     []string
	NavTiming      NavigationTiming
	Errs           map[string]error
}

func (s Static) err(name string) error { return s.Errs[name] }

func (s Static) Navigator() (Navigator, error) { return s.NavigatorInfo, s.err("navigator") }
func (s Static) Screen() (event.ScreenInfo, error) { return s.ScreenInfo, s.err("screen") }
func (s Static) Viewport() (event.Viewport, error) { return s.ViewportSize, s.err("viewport") }
func (s Static) Timezone() (string, int, error) { return s.TimezoneName, s.TimezoneOffset, s.err("timezone") }
func (s Static) Canvas() ([]byte, error) { return s.CanvasData, s.err("canvas") }
func (s Static) WebGL() (WebGLRaw, error) { return s.WebGLInfo, s.err("webgl") }
func (s Static) Fonts() ([]string, error) { return s.FontList, s.err("fonts") }
func (s Static) Plugins() ([]string, error) { return s.PluginList, s.err("plugins") }
func (s Static) Timing() (NavigationTiming, error) { return s.NavTiming, s.err("timing") }

// Desktop is a plausible desktop browser used by the replay command.
func Desktop(userAgent string) Static {
	return Static{
		NavigatorInfo: Navigator{
			UserAgent:           userAgent,
			Language:            "en-US",
			Languages:           []string{"en-US", "en"},
			Platform:            "Linux x86_64",
			HardwareConcurrency: 8,
			DeviceMemory:        8,
			CookieEnabled:       true,
		},
		ScreenInfo:     event.ScreenInfo{Width: 1920, Height: 1080, AvailWidth: 1920, AvailHeight: 1050, ColorDepth: 24, PixelRatio: 1},
		ViewportSize:   event.Viewport{Width: 1536, Height: 864},
		TimezoneName:   "Europe/Berlin",
		TimezoneOffset: -60,
		CanvasData:     []byte("canvas:passive-captcha:1920x1080"),
		WebGLInfo:      WebGLRaw{Vendor: "Mesa", Renderer: "Mesa Intel(R) UHD Graphics 620", Version: "WebGL 1.0", Extensions: []string{"ANGLE_instanced_arrays", "OES_texture_float"}},
		FontList:       []string{"Arial", "DejaVu Sans", "Liberation Serif"},
		PluginList:     []string{"PDF Viewer"},
		NavTiming:      NavigationTiming{PageLoad: 820, DOMReady: 430},
	}
}
