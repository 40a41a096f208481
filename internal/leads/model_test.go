package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsMissingAndComplete(t *testing.T) {
	tests := []struct {
		name     string
		fields   Fields
		missing  []string
		complete bool
	}{
		{name: "empty", fields: Fields{}, missing: []string{FieldName, FieldEmail, FieldPhone}},
		{name: "nil record", fields: nil, missing: []string{FieldName, FieldEmail, FieldPhone}},
		{
			name:    "company alone is never enough",
			fields:  Fields{FieldCompany: "Iquestbee Technology"},
			missing: []string{FieldName, FieldEmail, FieldPhone},
		},
		{
			name:    "sentinel and blank count as missing",
			fields:  Fields{FieldName: "Alex", FieldEmail: "N/A", FieldPhone: "  "},
			missing: []string{FieldEmail, FieldPhone},
		},
		{
			name:     "complete without company",
			fields:   Fields{FieldName: "Alex", FieldEmail: "alex@x.com", FieldPhone: "9876543210"},
			complete: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.missing, tt.fields.Missing())
			assert.Equal(t, tt.complete, tt.fields.Complete())
		})
	}
}

func TestFieldsMergeIsMonotonic(t *testing.T) {
	prior := Fields{FieldName: "Alex", FieldEmail: "alex@x.com"}

	merged := prior.Merge(map[string]any{
		FieldName:  nil,
		FieldEmail: "N/A",
		FieldPhone: " 9876543210 ",
		"Extra":    "ignored",
	})

	assert.Equal(t, "Alex", merged[FieldName])
	assert.Equal(t, "alex@x.com", merged[FieldEmail])
	assert.Equal(t, "9876543210", merged[FieldPhone])
	assert.NotContains(t, merged, "Extra")
	assert.NotContains(t, prior, FieldPhone, "merge must not mutate the prior record")
}

func TestFieldsMergeOverwritesWithNewValue(t *testing.T) {
	merged := Fields{FieldEmail: "old@x.com"}.Merge(map[string]any{FieldEmail: "new@x.com", FieldPhone: float64(9876543210)})
	assert.Equal(t, "new@x.com", merged[FieldEmail])
	assert.Equal(t, "9876543210", merged[FieldPhone])
}

func TestFieldsWithCompanyForcesConstant(t *testing.T) {
	f := Fields{FieldCompany: "Acme"}.WithCompany("Iquestbee Technology")
	assert.Equal(t, "Iquestbee Technology", f[FieldCompany])
}

func TestFieldsHasSentinelAndString(t *testing.T) {
	assert.True(t, Fields{FieldPhone: "N/A"}.HasSentinel())
	assert.False(t, Fields{FieldPhone: "123"}.HasSentinel())
	assert.Equal(t, "None", Fields{}.String())
	assert.Equal(t, "Email: a@b.c, Name: Alex", Fields{FieldName: "Alex", FieldEmail: "a@b.c"}.String())
}

func TestRecordRequestValidate(t *testing.T) {
	require.ErrorIs(t, (&RecordRequest{Fields: Fields{FieldName: "A"}}).Validate(), ErrMissingCRMID)
	require.ErrorIs(t, (&RecordRequest{CRMID: "00Q", Fields: Fields{}}).Validate(), ErrInvalidName)
	require.ErrorIs(t, (&RecordRequest{CRMID: "00Q", Fields: Fields{FieldName: "A"}}).Validate(), ErrMissingContact)
	require.NoError(t, (&RecordRequest{CRMID: "00Q", Fields: Fields{FieldName: "A", FieldPhone: "1"}}).Validate())
}
