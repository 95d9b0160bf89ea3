package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// File validation
func ValidateFileSize(size, maxSize int64) error {
	if size <= 0 {
		return fmt.Errorf("file is empty")
	}
	if size > maxSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", size, maxSize)
	}
	return nil
}

func ValidateFileName(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters)")
	}

	if !utf8.ValidString(filename) {
		return fmt.Errorf("filename contains invalid UTF-8 characters")
	}

	// Check for invalid characters; slashes would break locator scoping
	invalidChars := []string{"<", ">", ":", "\"", "|", "?", "*", "\x00", "/", "\\"}
	for _, char := range invalidChars {
		if strings.Contains(filename, char) {
			return fmt.Errorf("filename contains invalid character: %s", char)
		}
	}

	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be a directory reference")
	}

	return nil
}

// Email validation
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}

	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if len(password) > 72 {
		// bcrypt truncates beyond 72 bytes
		return fmt.Errorf("password too long (max 72 characters)")
	}
	return nil
}

func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("display name too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid UTF-8 characters")
	}
	return nil
}
