package nip77

import (
	"encoding/hex"
	"fmt"
)

const hexIDLen = 64

// Filter is the subset of the Nostr subscription filter that selects the records to
// be reconciled.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Validate checks the filter values.
func (f *Filter) Validate() error {
	for _, id := range f.IDs {
		if err := validateHex(id); err != nil {
			return fmt.Errorf("%w: ids: %w", ErrMalformedFrame, err)
		}
	}
	for _, pk := range f.Authors {
		if err := validateHex(pk); err != nil {
			return fmt.Errorf("%w: authors: %w", ErrMalformedFrame, err)
		}
	}
	for _, k := range f.Kinds {
		if k < 0 {
			return fmt.Errorf("%w: kinds: negative kind %d", ErrMalformedFrame, k)
		}
	}
	if f.Since != nil && *f.Since < 0 {
		return fmt.Errorf("%w: negative since", ErrMalformedFrame)
	}
	if f.Until != nil && *f.Until < 0 {
		return fmt.Errorf("%w: negative until", ErrMalformedFrame)
	}
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrMalformedFrame)
	}
	return nil
}

func validateHex(s string) error {
	if len(s) != hexIDLen {
		return fmt.Errorf("bad length %d for %q", len(s), s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return err
	}
	return nil
}
