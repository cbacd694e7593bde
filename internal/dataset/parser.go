package dataset

import (
	"encoding/json"
	"strconv"
	"strings"
)

// identifierColumns and labelColumns are the column names accepted for the
// two mandatory fields, in match priority order.
var identifierColumns = []string{"subject_id", "id", "participant_id", "subject"}
var labelColumns = []string{"label", "class", "group", "diagnosis"}

// jsonWrapperKeys are the conventional keys under which a JSON object may
// wrap its record array.
var jsonWrapperKeys = []string{"records", "data", "subjects", "rows", "items"}

// Record is one parsed subject row: an identifier, a class label and the
// numeric features found on the row. Rows missing identifier or label are
// never emitted.
type Record struct {
	SubjectID string
	Label     string
	Features  map[string]float64
}

// Parser converts a stream of text chunks into complete subject records.
//
// Physical chunk boundaries can fall in the middle of a logical line, so the
// parser keeps the trailing (possibly partial) line of each chunk and
// prepends it to the next chunk. Finish parses the final leftover. The format
// is sniffed once, on the first non-blank unit; JSON input is buffered whole
// and decoded at Finish since it has no line-oriented incremental form.
type Parser struct {
	format  Format
	sniffed bool

	header   []string
	leftover string
	jsonBuf  strings.Builder

	skipped int
}

// NewParser creates a parser with no header or format state.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one chunk of text and returns the complete records it
// produced. For JSON input Feed only buffers; records appear at Finish.
func (p *Parser) Feed(chunk string) []Record {
	if !p.sniffed {
		f := DetectFormat(p.leftover + chunk)
		if f == FormatUnrecognized {
			// Blank unit: hold it and sniff again with more data.
			p.leftover += chunk
			return nil
		}
		p.format = f
		p.sniffed = true
	}

	if p.format == FormatJSON {
		p.jsonBuf.WriteString(p.leftover)
		p.leftover = ""
		p.jsonBuf.WriteString(chunk)
		return nil
	}

	text := p.leftover + chunk
	lines := strings.Split(text, "\n")
	// The last element is the trailing fragment: possibly half a row, carried
	// into the next Feed.
	p.leftover = lines[len(lines)-1]
	var records []Record
	for _, line := range lines[:len(lines)-1] {
		records = p.consumeLine(records, line)
	}
	return records
}

// Finish parses whatever remains (the final leftover line, or the whole JSON
// buffer) and returns the last records.
func (p *Parser) Finish() []Record {
	if p.format == FormatJSON {
		p.jsonBuf.WriteString(p.leftover)
		p.leftover = ""
		return p.finishJSON()
	}
	var records []Record
	if p.leftover != "" {
		records = p.consumeLine(records, p.leftover)
		p.leftover = ""
	}
	return records
}

// Skipped returns how many candidate rows were dropped for missing fields or
// malformed content. Callers surface this so "fully ingested" and "partially
// ingested" are distinguishable.
func (p *Parser) Skipped() int {
	return p.skipped
}

// consumeLine handles one complete delimited line: the first non-blank line
// becomes the header, every later line is a candidate record.
func (p *Parser) consumeLine(records []Record, line string) []Record {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return records
	}
	if p.header == nil {
		fields := splitQuoteAware(line)
		header := make([]string, len(fields))
		for i, f := range fields {
			header[i] = strings.ToLower(strings.TrimSpace(f))
		}
		p.header = header
		return records
	}

	values := splitQuoteAware(line)
	if len(values) < 2 {
		p.skipped++
		return records
	}

	row := make(map[string]string, len(p.header))
	for i, col := range p.header {
		if i >= len(values) {
			break
		}
		row[col] = strings.TrimSpace(values[i])
	}

	rec, ok := recordFromRow(row)
	if !ok {
		p.skipped++
		return records
	}
	return append(records, rec)
}

// finishJSON decodes the buffered JSON payload. The top level may be an
// array, or an object wrapping the array under a conventional key.
func (p *Parser) finishJSON() []Record {
	raw := strings.TrimSpace(p.jsonBuf.String())
	p.jsonBuf.Reset()
	if raw == "" {
		return nil
	}

	var candidates []map[string]interface{}
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
			p.skipped++
			return nil
		}
	} else {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			p.skipped++
			return nil
		}
		for _, key := range jsonWrapperKeys {
			if inner, ok := wrapper[key]; ok {
				if err := json.Unmarshal(inner, &candidates); err == nil {
					break
				}
			}
		}
	}

	records := make([]Record, 0, len(candidates))
	for _, candidate := range candidates {
		row := make(map[string]string, len(candidate))
		for k, v := range candidate {
			row[strings.ToLower(strings.TrimSpace(k))] = jsonValueString(v)
		}
		rec, ok := recordFromRow(row)
		if !ok {
			p.skipped++
			continue
		}
		records = append(records, rec)
	}
	return records
}

// recordFromRow maps a column->value row to a Record. Both identifier and
// label must be present, anything else numeric becomes a feature.
func recordFromRow(row map[string]string) (Record, bool) {
	id, idCol := pickColumn(row, identifierColumns)
	label, labelCol := pickColumn(row, labelColumns)
	if id == "" || label == "" {
		return Record{}, false
	}

	features := make(map[string]float64)
	for col, val := range row {
		if col == idCol || col == labelCol || val == "" {
			continue
		}
		if num, err := strconv.ParseFloat(val, 64); err == nil {
			features[col] = num
		}
	}
	return Record{SubjectID: id, Label: label, Features: features}, true
}

// pickColumn returns the first candidate column present with a non-empty
// value, along with the column name it matched.
func pickColumn(row map[string]string, candidates []string) (string, string) {
	for _, col := range candidates {
		if val, ok := row[col]; ok && val != "" {
			return val, col
		}
	}
	return "", ""
}

// splitQuoteAware splits a line on commas outside quotes. A quote character
// only toggles the in-quotes flag; no escape-sequence handling is performed,
// and quotes never reach the output fields.
func splitQuoteAware(line string) []string {
	var fields []string
	var sb strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	fields = append(fields, sb.String())
	return fields
}

// jsonValueString renders a decoded JSON scalar the way the delimited path
// sees cell text. Nested values are ignored.
func jsonValueString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
