// Package seqcode generates human-facing document codes such as BN0001 or
// HD0042 from the last issued code.
package seqcode

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefixes used across the clinic documents.
const (
	Appointment  = "BN"
	Encounter    = "KB"
	LabOrder     = "XN"
	Prescription = "DT"
	Invoice      = "HD"
)

// DefaultWidth is the zero-padded width of the numeric suffix.
const DefaultWidth = 4

// Next returns prefix followed by the numeric suffix of last plus one. An
// empty or unparsable last code restarts the sequence at 1. The suffix grows
// past width when needed.
func Next(prefix, last string, width int) string {
	n := 0
	if suffix, ok := strings.CutPrefix(last, prefix); ok {
		if v, err := strconv.Atoi(suffix); err == nil && v > 0 {
			n = v
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, width, n+1)
}
