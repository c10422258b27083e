package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// ListingID derives the content-based identifier of a listing from its
// visible title and price, for sites that expose no stable listing id.
func ListingID(title, price string) string {
	return SHA256Hex(strings.TrimSpace(title) + strings.TrimSpace(price))
}

// HashIP hashes an IP address with a deployment salt so that log lines can
// be correlated without exposing the address.
func HashIP(ip, salt string) string {
	return SHA256Hex(salt + ip)
}
