// Package validate holds pure input-validation and log-sanitization
// functions shared across the gateway. None of these functions perform I/O.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Commitments is the closed set of accepted commitment levels.
var Commitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

var networkIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const (
	maxRPCURLLength    = 2048
	logTruncateAt      = 100
	truncationMarker   = "...[truncated]"
	networkNameMaxLen  = 128
	networkNameMinLen  = 1
)

var privateHostPrefixes = []string{
	"localhost", "127.", "::1", "0.0.0.0",
}

// ValidateRPCURL checks that s parses as an absolute HTTPS URL with a host
// and a length within bounds. Internal/loopback hosts are permitted but the
// second return value reports whether a warning should be logged.
func ValidateRPCURL(s string) (warn bool, err error) {
	if len(s) == 0 {
		return false, fmt.Errorf("rpc url is empty")
	}
	if len(s) > maxRPCURLLength {
		return false, fmt.Errorf("rpc url exceeds %d characters", maxRPCURLLength)
	}
	u, err := url.Parse(s)
	if err != nil {
		return false, fmt.Errorf("rpc url does not parse: %w", err)
	}
	if u.Scheme != "https" {
		return false, fmt.Errorf("rpc url must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return false, fmt.Errorf("rpc url has no host")
	}
	return isInternalHost(u.Hostname()), nil
}

func isInternalHost(host string) bool {
	if host == "" {
		return false
	}
	for _, p := range privateHostPrefixes {
		if strings.HasPrefix(host, p) {
			return true
		}
	}
	if strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") {
		return true
	}
	if strings.HasPrefix(host, "172.") {
		// 172.16.0.0 - 172.31.255.255
		parts := strings.SplitN(host, ".", 3)
		if len(parts) >= 2 {
			var second int
			if _, err := fmt.Sscanf(parts[1], "%d", &second); err == nil {
				if second >= 16 && second <= 31 {
					return true
				}
			}
		}
	}
	return false
}

// ValidateCommitment checks membership in the closed set of commitment levels.
func ValidateCommitment(s string) error {
	if !Commitments[s] {
		return fmt.Errorf("invalid commitment %q: must be one of processed, confirmed, finalized", s)
	}
	return nil
}

// ValidateNetworkID checks the 1..64 char alphanumeric+hyphen+underscore charset.
func ValidateNetworkID(s string) error {
	if !networkIDPattern.MatchString(s) {
		return fmt.Errorf("invalid network id %q: must be 1-64 chars of [A-Za-z0-9_-]", s)
	}
	return nil
}

// ValidateNetworkName checks length bounds and rejects control characters.
func ValidateNetworkName(s string) error {
	if len(s) < networkNameMinLen || len(s) > networkNameMaxLen {
		return fmt.Errorf("invalid network name length %d: must be %d-%d chars", len(s), networkNameMinLen, networkNameMaxLen)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("invalid network name: contains control character")
		}
	}
	return nil
}

// SanitizeForLogging is the only sanctioned way to render an untrusted
// string into a log line. URL-shaped input is reduced to "scheme://host";
// anything else longer than 100 characters is truncated with a marker.
func SanitizeForLogging(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	if len(s) > logTruncateAt {
		return s[:logTruncateAt] + truncationMarker
	}
	return s
}

// ValidateCAIP2 checks the <namespace>:<reference> shape: lowercase
// alphanumeric namespace, non-empty reference.
func ValidateCAIP2(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid CAIP-2 network id %q: expected namespace:reference", s)
	}
	namespace, reference := parts[0], parts[1]
	if namespace == "" || reference == "" {
		return fmt.Errorf("invalid CAIP-2 network id %q: empty namespace or reference", s)
	}
	for _, r := range namespace {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return fmt.Errorf("invalid CAIP-2 network id %q: namespace must be lowercase alphanumeric", s)
		}
	}
	return nil
}
