package dataset

import "strings"

// Format is the sniffed input format, decided once per input rather than by
// repeated failed parse attempts.
type Format int

const (
	FormatUnrecognized Format = iota
	FormatJSON
	FormatDelimited
)

// String returns the format name for logs.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatDelimited:
		return "delimited"
	default:
		return "unrecognized"
	}
}

// DetectFormat sniffs the input format from the first unit of text. A leading
// '{' or '[' marks JSON; any other non-blank text is treated as delimited.
func DetectFormat(sample string) Format {
	trimmed := strings.TrimLeft(sample, " \t\r\n\uFEFF")
	if trimmed == "" {
		return FormatUnrecognized
	}
	switch trimmed[0] {
	case '{', '[':
		return FormatJSON
	default:
		return FormatDelimited
	}
}
