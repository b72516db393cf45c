package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/cardcapture/internal/model"
)

func TestWriteXLSX(t *testing.T) {
	cat := &model.Catalog{
		TenantID: "tenant-a",
		Fields: []model.FieldRequirement{
			{Key: "first_name", Label: "First Name", Enabled: true},
			{Key: "email", Label: "Email", Enabled: true},
			{Key: "fax", Label: "Fax", Enabled: false},
		},
	}
	records := []model.ReviewedRecord{
		{
			DocumentID:   "doc-1",
			ReviewStatus: model.ReviewStatusReviewed,
			Fields: model.FieldRecord{
				"first_name": {Value: "Jane"},
				"email":      {Value: "jane@example.com"},
				"extra_key":  {Value: "bonus"},
			},
		},
		{
			DocumentID:   "doc-2",
			ReviewStatus: model.ReviewStatusNeedsHuman,
			Fields: model.FieldRecord{
				"first_name": {Value: "Ken"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(records, cat, &buf))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	sheet := file.Sheets[0]
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	assert.Equal(t, "Document ID", header.Cells[0].String())
	assert.Equal(t, "Review Status", header.Cells[1].String())
	assert.Equal(t, "First Name", header.Cells[2].String())
	assert.Equal(t, "Email", header.Cells[3].String())
	assert.Equal(t, "Extra Key", header.Cells[4].String())

	row1 := sheet.Rows[1]
	assert.Equal(t, "doc-1", row1.Cells[0].String())
	assert.Equal(t, "reviewed", row1.Cells[1].String())
	assert.Equal(t, "Jane", row1.Cells[2].String())
	assert.Equal(t, "bonus", row1.Cells[4].String())

	row2 := sheet.Rows[2]
	assert.Equal(t, "needs_human_review", row2.Cells[1].String())
	assert.Equal(t, "", row2.Cells[3].String())
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(nil, &model.Catalog{}, &buf))
	assert.NotZero(t, buf.Len())
}
