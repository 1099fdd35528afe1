// Package fasta classifies text as single-alphabet FASTA nucleotide data.
package fasta

import (
	"regexp"

	"github.com/tionis/fasta-validator/internal/types"
)

// pattern accepts a header line (optional horizontal whitespace, then '>' not
// followed by whitespace or another '>') and one or more body lines made only
// of A, G, T and C. Trailing newlines are allowed.
var pattern = regexp.MustCompile(`^[^\S\n]*>[^\s>].*(?:\n[^\S\n]*[AGTC]+)+\n*$`)

// IsFasta reports whether text is FASTA formatted.
func IsFasta(text string) bool {
	return pattern.MatchString(text)
}

// Label returns the callback label value for a classification.
func Label(isFasta bool) string {
	if isFasta {
		return types.LabelSuccessful
	}
	return types.LabelUnsuccessful
}

// Describe returns the acknowledgement message for a classification.
func Describe(isFasta bool) string {
	if isFasta {
		return "Is fasta"
	}
	return "Is not fasta"
}
