package dataset

import "strings"

// positiveLabels are generic class labels that always mean the screening
// condition is present.
var positiveLabels = map[string]struct{}{
	"positive": {},
	"pos":      {},
	"1":        {},
	"true":     {},
	"yes":      {},
}

// IsPositiveLabel maps a free-form class label to the boolean partition. A
// label is positive when it is a generic positive marker or when it names the
// dataset type's condition ("dyslexic" for type "dyslexia"); everything else,
// including "control", is negative.
func IsPositiveLabel(datasetType, label string) bool {
	lbl := strings.ToLower(strings.TrimSpace(label))
	if lbl == "" {
		return false
	}
	if _, ok := positiveLabels[lbl]; ok {
		return true
	}
	if lbl == datasetType {
		return true
	}
	// Adjective forms: "dyslexia" -> "dyslex..." matches "dyslexic".
	stem := strings.TrimSuffix(datasetType, "ia")
	return len(stem) >= 4 && strings.HasPrefix(lbl, stem)
}
