package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(nil)

	assert.True(t, r.Known("dyslexia"))
	assert.True(t, r.Known("dysgraphia"))
	assert.True(t, r.Known("dyscalculia"))
	assert.False(t, r.Known("autism"))
	assert.False(t, r.Known(""))

	assert.Contains(t, r.Metrics("dyslexia"), "reading_speed_wpm")
	assert.Contains(t, r.Metrics("dyscalculia"), "response_time_avg")
	assert.Equal(t, []string{"dyscalculia", "dysgraphia", "dyslexia"}, r.Types())
}

func TestRegistryOverrides(t *testing.T) {
	r := NewRegistry(map[string][]string{
		"dyslexia": {"custom_metric"},
		"adhd":     {"attention_span_s"},
		"ignored":  {},
	})

	assert.Equal(t, []string{"custom_metric"}, r.Metrics("dyslexia"))
	assert.True(t, r.Known("adhd"))
	assert.False(t, r.Known("ignored"))
	// Untouched types keep their defaults.
	assert.Contains(t, r.Metrics("dysgraphia"), "tremor_index")
}

func TestRegistryOverrideDoesNotAliasCaller(t *testing.T) {
	cols := []string{"a", "b"}
	r := NewRegistry(map[string][]string{"dyslexia": cols})
	cols[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, r.Metrics("dyslexia"))
}
