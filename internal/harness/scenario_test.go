package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := `
name: test_scenario
description: "Test scenario for validation"
timezone: Asia/Ho_Chi_Minh
setup:
  - { seq: 1, type: order-created, entity: E1, payload: { currency: VND } }
runs:
  - events:
      - { seq: 2, type: order-started, entity: E1, actor: ops }
  - reset: { entity: E1, seq: 1 }
assertions:
  - { type: state, entity: E1, expect: started }
  - { type: field, entity: E1, date: "2024-05-02", field: quantity, expect: null }
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Asia/Ho_Chi_Minh", scenario.Timezone)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "VND", scenario.Setup[0].Payload["currency"])
	require.Len(t, scenario.Runs, 2)
	require.NotNil(t, scenario.Runs[0].Events[0].Seq)
	assert.Equal(t, int64(2), *scenario.Runs[0].Events[0].Seq)
	assert.Equal(t, "ops", scenario.Runs[0].Events[0].Actor)
	assert.Equal(t, &ResetStep{Entity: "E1", Seq: 1}, scenario.Runs[1].Reset)
	assert.Len(t, scenario.Assertions, 2)
	assert.Nil(t, scenario.Assertions[1].Expect)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: d
runs: [{}]
assertion:
  - { type: state, entity: E1, expect: pending }
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing name",
			content: "description: d\nruns: [{}]\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nruns: [{}]\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "description is required",
		},
		{
			name:    "no runs",
			content: "name: n\ndescription: d\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "runs list is required",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\nruns: [{}]",
			want:    "assertions list is required",
		},
		{
			name:    "bad timezone",
			content: "name: n\ndescription: d\ntimezone: Nowhere/Land\nruns: [{}]\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "timezone",
		},
		{
			name:    "event without entity",
			content: "name: n\ndescription: d\nruns: [{events: [{seq: 1, type: order-created}]}]\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "runs[0].events[0]: entity is required",
		},
		{
			name:    "bad timestamp",
			content: "name: n\ndescription: d\nruns: [{events: [{seq: 1, type: order-created, entity: E1, at: yesterday}]}]\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "at:",
		},
		{
			name:    "negative reset",
			content: "name: n\ndescription: d\nruns: [{reset: {entity: E1, seq: -1}}]\nassertions: [{type: state, entity: E1, expect: none}]",
			want:    "seq must not be negative",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nruns: [{}]\nassertions: [{type: vibes, entity: E1}]",
			want:    "unknown assertion type",
		},
		{
			name:    "run out of range",
			content: "name: n\ndescription: d\nruns: [{}]\nassertions: [{type: outcome, entity: E1, run: 2, expect: applied}]",
			want:    "out of range",
		},
		{
			name:    "history count without count",
			content: "name: n\ndescription: d\nruns: [{}]\nassertions: [{type: history_count, entity: E1}]",
			want:    "requires count",
		},
		{
			name:    "field without date",
			content: "name: n\ndescription: d\nruns: [{}]\nassertions: [{type: field, entity: E1, field: quantity, expect: 1}]",
			want:    "requires date and field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTestdataScenariosParse(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		_, err := LoadScenario(path)
		assert.NoError(t, err, path)
	}
}
