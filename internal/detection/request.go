package detection

import (
	"net/http"
	"strings"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/stats"
)

var uaAutomationKeywords = []string{
	"headless", "selenium", "webdriver", "puppeteer",
	"playwright", "phantom", "jsdom", "nightmare",
	"automated", "bot", "crawler", "spider",
}

func analyzeRequest(r *http.Request, body []byte) RequestSignals {
	s := RequestSignals{
		RequestSize: len(body),
		UserAgent:   analyzeUserAgent(r.UserAgent()),
	}
	if len(body) > 0 {
		var counts [256]int
		for _, b := range body {
			counts[b]++
		}
		s.PayloadEntropy = stats.ShannonCounts(counts[:], len(body))
	}
	return s
}

func analyzeUserAgent(userAgent string) UASignals {
	s := UASignals{
		Length:             len(userAgent),
		AutomationKeywords: []string{},
	}
	lower := strings.ToLower(userAgent)
	for _, kw := range uaAutomationKeywords {
		if strings.Contains(lower, kw) {
			s.ContainsAutomation = true
			s.AutomationKeywords = append(s.AutomationKeywords, kw)
		}
	}
	s.Platform = platformOf(lower)
	s.Browser = browserOf(lower)
	return s
}

// iOS user agents also mention "Mac OS X", so mobile platforms go first.
func platformOf(ua string) string {
	switch {
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	}
	return ""
}

func browserOf(ua string) string {
	switch {
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	}
	return ""
}
