package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateProvider checks if the provider name is in the allowed list
func ValidateProvider(provider string) error {
	allowed := map[string]bool{
		"aws":   true,
		"azure": true,
		"gcp":   true,
	}

	if !allowed[strings.ToLower(provider)] {
		return fmt.Errorf("invalid provider: %s (allowed: aws, azure, gcp)", provider)
	}
	return nil
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}

	// Allow alphanumeric, dash, underscore (max 64 chars)
	pattern := `^[a-zA-Z0-9_-]{1,64}$`
	matched, _ := regexp.MatchString(pattern, tenant)
	if !matched {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}

	return nil
}

// ValidateAccountID validates cloud account ID format
func ValidateAccountID(accountID string) error {
	if accountID == "" {
		return nil // Optional field, empty means whole tenant
	}

	pattern := `^[a-zA-Z0-9._:/-]{1,128}$`
	matched, _ := regexp.MatchString(pattern, accountID)
	if !matched {
		return fmt.Errorf("invalid account ID format")
	}

	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
