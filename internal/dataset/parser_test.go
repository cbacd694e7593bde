package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvSample = "subject_id,label,reading_speed_wpm,regression_count\n" +
	"S001,dyslexic,145.5,12\n" +
	"S002,control,210.0,3\n" +
	"S003,dyslexic,132.8,15\n"

func feedAll(p *Parser, chunks []string) []Record {
	var records []Record
	for _, chunk := range chunks {
		records = append(records, p.Feed(chunk)...)
	}
	return append(records, p.Finish()...)
}

func TestParserCSVWholeInput(t *testing.T) {
	p := NewParser()
	records := feedAll(p, []string{csvSample})

	require.Len(t, records, 3)
	assert.Equal(t, "S001", records[0].SubjectID)
	assert.Equal(t, "dyslexic", records[0].Label)
	assert.InDelta(t, 145.5, records[0].Features["reading_speed_wpm"], 1e-9)
	assert.InDelta(t, 12, records[0].Features["regression_count"], 1e-9)
	assert.Equal(t, 0, p.Skipped())
}

func TestParserChunkBoundaryInvariance(t *testing.T) {
	whole := feedAll(NewParser(), []string{csvSample})
	require.NotEmpty(t, whole)

	// Every possible split point, including mid-field and mid-number.
	for cut := 1; cut < len(csvSample); cut++ {
		p := NewParser()
		got := feedAll(p, []string{csvSample[:cut], csvSample[cut:]})
		assert.Equal(t, whole, got, "split at byte %d changed the records", cut)
		assert.Equal(t, 0, p.Skipped())
	}
}

func TestParserManySmallChunks(t *testing.T) {
	p := NewParser()
	var chunks []string
	for i := 0; i < len(csvSample); i += 3 {
		end := i + 3
		if end > len(csvSample) {
			end = len(csvSample)
		}
		chunks = append(chunks, csvSample[i:end])
	}
	got := feedAll(p, chunks)
	assert.Equal(t, feedAll(NewParser(), []string{csvSample}), got)
}

func TestParserHeaderNormalization(t *testing.T) {
	input := " Subject_ID , LABEL ,Reading_Speed_WPM\nS001,positive,100\n"
	records := feedAll(NewParser(), []string{input})

	require.Len(t, records, 1)
	assert.Equal(t, "S001", records[0].SubjectID)
	assert.InDelta(t, 100, records[0].Features["reading_speed_wpm"], 1e-9)
}

func TestParserQuotedFields(t *testing.T) {
	input := "subject_id,label,notes,score\n" +
		"\"S001\",\"dyslexic\",\"reads slowly, skips lines\",42\n"
	records := feedAll(NewParser(), []string{input})

	require.Len(t, records, 1)
	assert.Equal(t, "S001", records[0].SubjectID)
	assert.Equal(t, "dyslexic", records[0].Label)
	// The quoted comma must not split the field; non-numeric cells are not
	// features.
	assert.NotContains(t, records[0].Features, "notes")
	assert.InDelta(t, 42, records[0].Features["score"], 1e-9)
}

func TestParserAlternateColumnNames(t *testing.T) {
	input := "participant_id,diagnosis,tremor_index\nP7,control,0.4\n"
	records := feedAll(NewParser(), []string{input})

	require.Len(t, records, 1)
	assert.Equal(t, "P7", records[0].SubjectID)
	assert.Equal(t, "control", records[0].Label)
}

func TestParserSkipsMalformedRows(t *testing.T) {
	input := "subject_id,label,score\n" +
		"S001,positive,10\n" +
		"justonefield\n" + // fewer than two fields
		",positive,20\n" + // missing identifier
		"S004,,30\n" + // missing label
		"S005,negative,40\n"
	p := NewParser()
	records := feedAll(p, []string{input})

	require.Len(t, records, 2)
	assert.Equal(t, "S001", records[0].SubjectID)
	assert.Equal(t, "S005", records[1].SubjectID)
	assert.Equal(t, 3, p.Skipped())
}

func TestParserBlankLinesIgnored(t *testing.T) {
	input := "\n\nsubject_id,label,score\n\nS001,positive,1\n\n"
	p := NewParser()
	records := feedAll(p, []string{input})

	require.Len(t, records, 1)
	assert.Equal(t, 0, p.Skipped())
}

func TestParserCRLFInput(t *testing.T) {
	input := "subject_id,label,score\r\nS001,positive,1\r\nS002,negative,2\r\n"
	records := feedAll(NewParser(), []string{input})
	require.Len(t, records, 2)
}

func TestParserJSONArray(t *testing.T) {
	input := `[
		{"subject_id": "S001", "label": "dyslexic", "reading_speed_wpm": 145.5},
		{"subject_id": "S002", "label": "control", "reading_speed_wpm": 210}
	]`
	records := feedAll(NewParser(), []string{input})

	require.Len(t, records, 2)
	assert.Equal(t, "S001", records[0].SubjectID)
	assert.InDelta(t, 145.5, records[0].Features["reading_speed_wpm"], 1e-9)
	assert.InDelta(t, 210, records[1].Features["reading_speed_wpm"], 1e-9)
}

func TestParserJSONWrapperObject(t *testing.T) {
	input := `{"records": [{"id": "S001", "class": "positive", "score": 3.5}]}`
	records := feedAll(NewParser(), []string{input})

	require.Len(t, records, 1)
	assert.Equal(t, "S001", records[0].SubjectID)
	assert.Equal(t, "positive", records[0].Label)
	assert.InDelta(t, 3.5, records[0].Features["score"], 1e-9)
}

func TestParserJSONSplitAcrossChunks(t *testing.T) {
	input := `[{"subject_id": "S001", "label": "positive", "score": 1.25}]`
	whole := feedAll(NewParser(), []string{input})
	require.Len(t, whole, 1)

	for cut := 1; cut < len(input); cut++ {
		got := feedAll(NewParser(), []string{input[:cut], input[cut:]})
		assert.Equal(t, whole, got, "split at byte %d changed the records", cut)
	}
}

func TestParserJSONRecordsMissingFieldsSkipped(t *testing.T) {
	input := `[
		{"subject_id": "S001", "label": "positive", "score": 1},
		{"subject_id": "S002", "score": 2},
		{"label": "negative", "score": 3}
	]`
	p := NewParser()
	records := feedAll(p, []string{input})

	require.Len(t, records, 1)
	assert.Equal(t, 2, p.Skipped())
}

func TestParserLeadingWhitespaceStillSniffsJSON(t *testing.T) {
	input := "  \n\t[{\"subject_id\": \"S1\", \"label\": \"yes\", \"v\": 1}]"
	records := feedAll(NewParser(), []string{input})
	require.Len(t, records, 1)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat(`{"a":1}`))
	assert.Equal(t, FormatJSON, DetectFormat("  [1,2]"))
	assert.Equal(t, FormatDelimited, DetectFormat("subject_id,label\n"))
	assert.Equal(t, FormatUnrecognized, DetectFormat("   \n\t "))
	assert.Equal(t, FormatUnrecognized, DetectFormat(""))
}

func TestSplitQuoteAware(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitQuoteAware("a,b,c"))
	assert.Equal(t, []string{"a", "b,c", "d"}, splitQuoteAware(`a,"b,c",d`))
	assert.Equal(t, []string{"", ""}, splitQuoteAware(","))
	assert.Equal(t, []string{"plain"}, splitQuoteAware("plain"))
}
