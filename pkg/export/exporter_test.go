package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"id", "title"},
		Rows: []map[string]string{
			{"id": "case-1", "title": "3 consecutive absences"},
			{"id": "case-2", "title": "Attendance below 80% (60%)"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "id,title\ncase-1,3 consecutive absences\ncase-2,Attendance below 80% (60%)\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Cases")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
}
