// Package device turns raw User-Agent strings into the human-readable
// requester descriptions recorded alongside consent and access entries.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent renders a short display name such as "Chrome on Mac OS X".
// An empty or blank user agent yields "Unknown Device".
func ParseUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = "Unknown Browser"
	}

	osName := ua.OSInfo().Name
	if osName == "" {
		osName = ua.Platform()
	}
	if osName == "" {
		osName = "Unknown Platform"
	}

	return strings.TrimSpace(name + " on " + osName)
}

// FormatRequester joins the parsed device name with the caller address for
// ledger entries. The address part is omitted when unknown.
func FormatRequester(rawUserAgent string, remoteAddr string) string {
	name := ParseUserAgent(rawUserAgent)
	addr := strings.TrimSpace(remoteAddr)
	if addr == "" {
		return name
	}
	return name + " (" + addr + ")"
}
