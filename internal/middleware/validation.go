package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

// Field length limits.
const (
	MaxListingIDLen  = 128
	MaxReporterIDLen = 64
	MaxContextLen    = 64
	MaxTitleLen      = 300
	MaxPriceLen      = 64
	MaxSessionEvents = 200
)

// MaxEventSkew is how far ahead of the server clock a session event
// timestamp may be.
const MaxEventSkew = 5 * time.Second

var (
	// listingIDRe matches site-native listing ids and hex content hashes.
	listingIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// reporterIDRe matches reporter ids: hex SHA256 hashes of a device UUID.
	reporterIDRe = regexp.MustCompile(`^[0-9a-f]+$`)
	// contextRe matches vote context tags such as "mbway" or "in_person".
	contextRe = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidateListingID checks that a listing id is well-formed.
func ValidateListingID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "listingId is required"
	}
	if len(id) > MaxListingIDLen {
		return "", "listingId must be at most 128 characters"
	}
	if !listingIDRe.MatchString(id) {
		return "", "listingId contains invalid characters"
	}
	return id, ""
}

// ValidateReporterID checks that a reporter id is a valid hex hash.
func ValidateReporterID(id string) (string, string) {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return "", "reporterId is required"
	}
	if len(id) > MaxReporterIDLen {
		return "", "reporterId must be at most 64 characters"
	}
	if !reporterIDRe.MatchString(id) {
		return "", "reporterId must be a hexadecimal hash"
	}
	return id, ""
}

// ValidateContext normalizes an optional vote context tag. An empty tag is
// valid and means no context.
func ValidateContext(tag string) (string, string) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "", ""
	}
	if len(tag) > MaxContextLen {
		return "", "context must be at most 64 characters"
	}
	if !contextRe.MatchString(tag) {
		return "", "context must be a lowercase tag"
	}
	return tag, ""
}

// ValidateListingText checks the title and price used to derive a listing id.
func ValidateListingText(title, price string) (string, string, string) {
	title = strings.TrimSpace(title)
	price = strings.TrimSpace(price)
	if title == "" {
		return "", "", "title is required"
	}
	if len(title) > MaxTitleLen {
		return "", "", "title must be at most 300 characters"
	}
	if len(price) > MaxPriceLen {
		return "", "", "price must be at most 64 characters"
	}
	return title, price, ""
}
