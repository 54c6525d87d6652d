package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// DisplayNameRegex allows letters, digits, spaces and a few separators.
	DisplayNameRegex = regexp.MustCompile(`^[\p{L}\p{N} _.\-]+$`)

	// UserIDRegex matches ids issued by the guest flow and OIDC subjects.
	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_:|@.\-]+$`)
)

// ValidateDisplayName validates the name shown to a partner in match_found.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 32 {
		return fmt.Errorf("display name must be between 2 and 32 characters")
	}
	if !DisplayNameRegex.MatchString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("user id is too long (max 128 characters)")
	}
	if !UserIDRegex.MatchString(id) {
		return fmt.Errorf("invalid user id format")
	}
	return nil
}

// ValidateReportReason bounds the free-text reason of report_user.
func ValidateReportReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("report reason is required")
	}
	if utf8.RuneCountInString(reason) > 500 {
		return fmt.Errorf("report reason is too long (max 500 characters)")
	}
	return nil
}

// ValidateChatText rejects empty messages and messages above maxBytes.
func ValidateChatText(text string, maxBytes int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message text is required")
	}
	if len(text) > maxBytes {
		return fmt.Errorf("message text is too long (max %d bytes)", maxBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message text must be valid UTF-8")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
