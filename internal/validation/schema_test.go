package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSubmissionAcceptsCompletePayload(t *testing.T) {
	errs, err := ValidateSubmission([]byte(`{
		"name": "Jane",
		"brokerage_aum": 200000000,
		"advisory_aum": 100000000,
		"revenue": 5000000,
		"email": "jane@x.com"
	}`))
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateSubmissionReportsMissingFields(t *testing.T) {
	errs, err := ValidateSubmission([]byte(`{"name": "Jane", "email": "jane@x.com"}`))
	require.NoError(t, err)

	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"advisory_aum", "brokerage_aum", "revenue"}, fields)
}

func TestValidateSubmissionRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"email":         `{"name":"Jane","brokerage_aum":1,"advisory_aum":1,"revenue":1,"email":"jane@x"}`,
		"brokerage_aum": `{"name":"Jane","brokerage_aum":"lots","advisory_aum":1,"revenue":1,"email":"jane@x.com"}`,
		"revenue":       `{"name":"Jane","brokerage_aum":1,"advisory_aum":1,"revenue":-5,"email":"jane@x.com"}`,
		"advisory_aum":  `{"name":"Jane","brokerage_aum":1,"advisory_aum":9e22,"revenue":1,"email":"jane@x.com"}`,
		"name":          `{"name":"   ","brokerage_aum":1,"advisory_aum":1,"revenue":1,"email":"jane@x.com"}`,
	}
	for field, body := range cases {
		t.Run(field, func(t *testing.T) {
			errs, err := ValidateSubmission([]byte(body))
			require.NoError(t, err)
			require.NotEmpty(t, errs)
			assert.Equal(t, field, errs[0].Field)
		})
	}
}

func TestValidateSubmissionMalformedJSON(t *testing.T) {
	_, err := ValidateSubmission([]byte(`{"name":`))
	assert.Error(t, err)
}
