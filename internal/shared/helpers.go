// Package shared provides common utility functions used across multiple
// packages in the rezgo codebase.
package shared

import (
	"fmt"
	"strings"
)

// HTTPStatusError creates a formatted error for non-2xx HTTP responses.
func HTTPStatusError(status int, url string) error {
	return fmt.Errorf("status=%d url=%s", status, url)
}

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	if len(output) == 0 {
		return err
	}
	return fmt.Errorf("%s: %w", strings.TrimSpace(string(output)), err)
}
