package useragent_test

import (
	"testing"

	"github.com/bluelight-hub/authguard/internal/useragent"
	"github.com/stretchr/testify/assert"
)

const (
	chromeDesktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestClassify_Desktop(t *testing.T) {
	c := useragent.Classify(chromeDesktopUA)

	assert.Equal(t, useragent.DeviceDesktop, c.DeviceType)
	assert.Equal(t, "Chrome", c.Browser)
	assert.Equal(t, "Windows", c.OS)
	assert.False(t, c.IsBot)
	assert.False(t, c.Suspicious)
}

func TestClassify_MobileDefaultsFromOSFamily(t *testing.T) {
	c := useragent.Classify(iphoneSafariUA)

	assert.Equal(t, useragent.DeviceMobile, c.DeviceType)
	assert.Equal(t, "iOS", c.OS)
}

func TestClassify_KnownBot(t *testing.T) {
	c := useragent.Classify(googlebotUA)

	assert.True(t, c.IsBot)
	assert.Equal(t, useragent.DeviceBot, c.DeviceType)
	// Confirmed bots are not double-flagged via the secondary pattern list
	assert.False(t, c.Suspicious)
}

func TestClassify_SuspiciousTooling(t *testing.T) {
	for _, raw := range []string{
		"curl/8.4.0",
		"python-requests/2.31.0",
		"Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0.0.0",
	} {
		c := useragent.Classify(raw)
		assert.True(t, c.Suspicious || c.IsBot, "expected %q to be flagged", raw)
	}
}

func TestClassify_EmptyUserAgent(t *testing.T) {
	c := useragent.Classify("")

	assert.Equal(t, useragent.DeviceUnknown, c.DeviceType)
	assert.Empty(t, c.Browser)
	assert.False(t, c.IsBot)
	assert.False(t, c.Suspicious)
}

func TestSignature_StableForIdenticalAgents(t *testing.T) {
	a := useragent.Classify(chromeDesktopUA)
	b := useragent.Classify(chromeDesktopUA)

	assert.Equal(t, a.Signature(), b.Signature())
	assert.NotEqual(t, a.Signature(), useragent.Classify(iphoneSafariUA).Signature())
}
