package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	rucRegex   = regexp.MustCompile(`^[JC]\d{13}$`)
	ctrlRegex  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateRUC validates a Nicaraguan RUC (J or C prefix plus 13 digits)
func ValidateRUC(ruc string) error {
	if !rucRegex.MatchString(strings.ToUpper(ruc)) {
		return fmt.Errorf("invalid RUC format: %s", ruc)
	}
	return nil
}

// ValidateCountryCode validates an ISO 3166-1 alpha-2 country code
func ValidateCountryCode(code string) error {
	if len(code) != 2 || strings.ToUpper(code) != code {
		return fmt.Errorf("invalid country code: %s", code)
	}
	return nil
}

// SanitizeString removes control characters from a string
func SanitizeString(s string) string {
	return ctrlRegex.ReplaceAllString(s, "")
}
