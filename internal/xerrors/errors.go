// Package xerrors provides the error-wrapping helper shared across
// statemesh's components: config loading, peer provider setup, and the
// top-level cobra command all attach a stage name to the underlying
// failure this way rather than returning bare errors.
package xerrors

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
