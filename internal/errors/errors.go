// Package errors provides simple, semantic error constructors for the
// secretsmith CLI, matching the error taxonomy in the tool's design: naming
// the operation that failed rather than leaking the bare underlying error.
package errors

import "fmt"

// ValidationError creates an error for invalid input validation.
func ValidationError(field, reason string) error {
	return fmt.Errorf("invalid %s: %s", field, reason)
}

// ConfigError creates an error for rules-file/configuration problems with a suggestion.
func ConfigError(issue, suggestion string) error {
	return fmt.Errorf("configuration error: %s (%s)", issue, suggestion)
}

// IdentityError creates an error for identity loading/parsing problems.
func IdentityError(issue string) error {
	return fmt.Errorf("identity error: %s", issue)
}

// CryptoError creates an error for age encryption/decryption failures, naming the offending path.
func CryptoError(operation, path string, err error) error {
	return fmt.Errorf("%s %s: %w", operation, path, err)
}

// SchedulerError creates an error for generation-scheduler semantic failures
// (missing dependency, circular dependency, max iterations exceeded).
func SchedulerError(reason string) error {
	return fmt.Errorf("generation failed: %s", reason)
}

// OperationError creates a standardized error for a failed operation.
func OperationError(operation, resource string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s %s: %w", operation, resource, err)
}

// FileAccessError creates an error for file access issues.
func FileAccessError(operation, filename string, err error) error {
	return OperationError(operation, fmt.Sprintf("file '%s'", filename), err)
}
