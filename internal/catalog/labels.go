package catalog

import (
	"fmt"
	"regexp"
)

// Label key format: lowercase start, then alphanumeric + underscore + forward-slash, ≤32 chars.
// Compatible with the go-bexpr default identifier grammar, so every key can be filtered on.
var labelKeyRE = regexp.MustCompile(`^[a-z][a-z0-9_/]{0,31}$`)

const maxLabelValueLength = 256

// ValidateLabels checks label keys and values.
func ValidateLabels(labels map[string]string) error {
	for key, value := range labels {
		if !labelKeyRE.MatchString(key) {
			return fmt.Errorf("label key '%s' does not match required format: must start with lowercase letter, contain only lowercase alphanumeric, underscore, or forward-slash, and be ≤32 characters", key)
		}
		if len(value) > maxLabelValueLength {
			return fmt.Errorf("label '%s' value exceeds %d characters", key, maxLabelValueLength)
		}
	}
	return nil
}
