// Package useragent derives device fingerprints and automation signals
// from raw User-Agent strings.
package useragent

import (
	"strings"

	ua "github.com/mileusna/useragent"
)

// Device type labels
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Classification is the derived fingerprint for one User-Agent string
type Classification struct {
	DeviceType string
	Browser    string
	OS         string
	IsBot      bool
	Suspicious bool
}

// Signature returns the device signature used to recognize returning devices.
func (c Classification) Signature() string {
	return c.DeviceType + "|" + c.Browser + "|" + c.OS
}

// Secondary automation signatures: headless browsers, scripting tools and
// generic crawler tokens that the parser does not classify as confirmed bots.
var suspiciousTokens = []string{
	"headlesschrome",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"curl",
	"wget",
	"python-requests",
	"python/",
	"go-http-client",
	"java/",
	"okhttp",
	"libwww-perl",
	"scrapy",
	"httpclient",
	"crawler",
	"spider",
	"scanner",
}

// Classify parses a User-Agent string into a device classification.
// An empty string yields an unknown device; the caller decides how
// suspicious a missing User-Agent is.
func Classify(raw string) Classification {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Classification{DeviceType: DeviceUnknown}
	}

	parsed := ua.Parse(raw)

	c := Classification{
		Browser: parsed.Name,
		OS:      parsed.OS,
		IsBot:   parsed.Bot,
	}

	switch {
	case parsed.Bot:
		c.DeviceType = DeviceBot
	case parsed.Tablet:
		c.DeviceType = DeviceTablet
	case parsed.Mobile:
		c.DeviceType = DeviceMobile
	case parsed.Desktop:
		c.DeviceType = DeviceDesktop
	default:
		c.DeviceType = deviceFromOS(parsed.OS)
	}

	if !c.IsBot {
		c.Suspicious = matchesSuspiciousToken(raw)
	}

	return c
}

// deviceFromOS falls back to the OS family when the parser reports no
// explicit device class.
func deviceFromOS(os string) string {
	switch os {
	case ua.Android, ua.IOS:
		return DeviceMobile
	case ua.Windows, ua.MacOS, ua.Linux, ua.ChromeOS:
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

func matchesSuspiciousToken(raw string) bool {
	lowered := strings.ToLower(raw)
	for _, token := range suspiciousTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}
