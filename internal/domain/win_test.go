package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{"known values", []string{"Pay Rise", "Recognition"}, []string{"Pay Rise", "Recognition"}},
		{"case insensitive", []string{"pay rise"}, []string{"Pay Rise"}},
		{"unknown dropped", []string{"Bonus", "Equality"}, []string{"Equality"}},
		{"repeat dropped", []string{"Other", "other"}, []string{"Other"}},
		{"at most two", []string{"Benefits", "Equality", "Other"}, []string{"Benefits", "Equality"}},
		{"empty", []string{"", " "}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCategories(tt.raw...))
		})
	}
}

func TestSearchStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, SearchPending.Terminal())
	assert.False(t, SearchProcessing.Terminal())
	assert.True(t, SearchCompleted.Terminal())
	assert.True(t, SearchFailed.Terminal())
}

func TestSweepReportTotals(t *testing.T) {
	t.Parallel()

	report := SweepReport{Results: []SourceResult{
		{Status: SourceSuccess, RawCandidates: 12, Checked: 8, Classified: 3, Submitted: 2},
		{Status: SourceError},
		{Status: SourceSuccess, RawCandidates: 1, Checked: 1, Classified: 1, Submitted: 1},
	}}

	total := report.Totals()
	assert.Equal(t, 13, total.RawCandidates)
	assert.Equal(t, 9, total.Checked)
	assert.Equal(t, 4, total.Classified)
	assert.Equal(t, 3, total.Submitted)
	assert.Equal(t, 1, report.Failed())
}
