package detection

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var automationKeywords = []string{"headless", "selenium", "webdriver", "puppeteer", "playwright"}

// Headers whose mere presence points at tooling.
var toolingHeaders = []string{
	"Chrome-Proxy",
	"X-DevTools-Emulate-Network-Conditions-Client-Id",
}

var expectedHeaders = []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding"}

func analyzeHeaders(headers http.Header) HeaderSignals {
	s := HeaderSignals{
		MissingExpected:    []string{},
		AutomationHeaders:  []string{},
		InconsistentValues: []string{},
		HeaderOrder:        make([]string, 0, len(headers)),
		HeaderCount:        len(headers),
	}

	for key := range headers {
		s.HeaderOrder = append(s.HeaderOrder, strings.ToLower(key))
	}
	sort.Strings(s.HeaderOrder)

	s.AutomationHeaders = append(s.AutomationHeaders, detectAutomationHeaders(headers)...)

	for _, expected := range expectedHeaders {
		if headers.Get(expected) == "" {
			s.MissingExpected = append(s.MissingExpected, expected)
		}
	}

	if ua, lang := headers.Get("User-Agent"), headers.Get("Accept-Language"); ua != "" && lang != "" {
		if languageMismatch(ua, lang) {
			s.InconsistentValues = append(s.InconsistentValues, "language-ua-mismatch")
		}
	}
	return s
}

func detectAutomationHeaders(headers http.Header) []string {
	var found []string
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, header := range keys {
		for _, value := range headers[header] {
			lower := strings.ToLower(value)
			for _, kw := range automationKeywords {
				if strings.Contains(lower, kw) {
					found = append(found, fmt.Sprintf("%s: %s", header, value))
					break
				}
			}
		}
	}
	for _, header := range toolingHeaders {
		if v := headers.Get(header); v != "" {
			found = append(found, fmt.Sprintf("%s: %s", header, v))
		}
	}
	return found
}

func languageMismatch(userAgent, acceptLanguage string) bool {
	ua := strings.ToLower(userAgent)
	lang := strings.ToLower(acceptLanguage)
	for _, tag := range []string{"zh-cn", "ja-jp", "ko-kr"} {
		if strings.Contains(ua, tag) && !strings.Contains(lang, tag[:2]) {
			return true
		}
	}
	return false
}

// headerFingerprint hashes sorted header names with a short value prefix.
func headerFingerprint(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := headers.Get(key)
		if len(value) > 20 {
			value = value[:20] + "..."
		}
		parts = append(parts, key+":"+value)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}
