package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPositiveLabel(t *testing.T) {
	cases := []struct {
		datasetType string
		label       string
		want        bool
	}{
		{"dyslexia", "positive", true},
		{"dyslexia", "POS", true},
		{"dyslexia", "1", true},
		{"dyslexia", "true", true},
		{"dyslexia", "yes", true},
		{"dyslexia", "dyslexia", true},
		{"dyslexia", "dyslexic", true},
		{"dyslexia", " Dyslexic ", true},
		{"dysgraphia", "dysgraphic", true},
		{"dyscalculia", "dyscalculic", true},
		{"dyslexia", "control", false},
		{"dyslexia", "negative", false},
		{"dyslexia", "0", false},
		{"dyslexia", "", false},
		{"dyslexia", "dysgraphic", false},
		{"dyscalculia", "dyslexic", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsPositiveLabel(tc.datasetType, tc.label),
			"type=%q label=%q", tc.datasetType, tc.label)
	}
}
