package google

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/url"

	"golang.org/x/oauth2"
)

// DeviceName is sent with consent requests that redirect to a private address.
const DeviceName = "commshub"

// isPrivateIP checks if the host is a private/local IP address
func isPrivateIP(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" || host == "127.0.0.1" {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsPrivate()
}

// ConsentOptions returns the auth code options for a consent URL: offline
// access with a forced consent prompt so Google always issues a refresh token.
// Google additionally requires device_id and device_name when the redirect
// URL points at a private IP address.
func ConsentOptions(redirectURL string) []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	}

	u, err := url.Parse(redirectURL)
	if err != nil || !isPrivateIP(u.Host) {
		return opts
	}
	deviceID := make([]byte, 16)
	rand.Read(deviceID)
	return append(opts,
		oauth2.SetAuthURLParam("device_id", hex.EncodeToString(deviceID)),
		oauth2.SetAuthURLParam("device_name", DeviceName),
	)
}
