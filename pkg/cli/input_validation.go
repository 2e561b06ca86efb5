// Package cli holds shared validation for operator-facing command input.
package cli

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ValidateGameID checks that the supplied game id is a well-formed UUID
// before it reaches a query.
func ValidateGameID(input string) error {
	if input == "" {
		return errors.New("game id is required")
	}
	if _, err := uuid.Parse(input); err != nil {
		return fmt.Errorf("invalid game id %q: %w", input, err)
	}
	return nil
}

// ValidateAddr checks that the control-server address is an absolute
// http(s) URL.
func ValidateAddr(input string) error {
	u, err := url.Parse(input)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", input, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("address %q must use http or https", input)
	}
	if u.Host == "" {
		return fmt.Errorf("address %q has no host", input)
	}
	return nil
}
