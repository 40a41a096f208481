package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sales-lead-agent/internal/leads"
	"github.com/wolfman30/sales-lead-agent/pkg/logging"
)

const testCompany = "Iquestbee Technology"

func TestExtractParsesFencedJSON(t *testing.T) {
	llm := &stubLLM{replies: []string{"```json\n{\"Name\":\" Alex \",\"Company\":\"Acme\",\"Email\":\"alex@x.com\",\"Phone\":null}\n```"}}
	ex := NewLLMFieldExtractor(llm, "", testCompany, logging.Discard())

	got, ok := ex.Extract(context.Background(), "I'm Alex, alex@x.com", leads.Fields{})
	require.True(t, ok)
	assert.Equal(t, leads.Fields{
		leads.FieldName:    "Alex",
		leads.FieldCompany: testCompany,
		leads.FieldEmail:   "alex@x.com",
	}, got)

	require.Len(t, llm.requests, 1)
	assert.Contains(t, llm.requests[0].Messages[0].Content, "Message: I'm Alex, alex@x.com")
}

func TestExtractToleratesSurroundingProse(t *testing.T) {
	llm := &stubLLM{replies: []string{`Sure! Here it is: {"Name":null,"Company":null,"Email":null,"Phone":9876543210} hope that helps`}}
	ex := NewLLMFieldExtractor(llm, "", testCompany, logging.Discard())

	got, ok := ex.Extract(context.Background(), "9876543210", leads.Fields{leads.FieldName: "Alex"})
	require.True(t, ok)
	assert.Equal(t, "9876543210", got[leads.FieldPhone])
	assert.Equal(t, "Alex", got[leads.FieldName])
}

func TestExtractNeverErasesCapturedFields(t *testing.T) {
	prior := leads.Fields{leads.FieldName: "Alex", leads.FieldEmail: "alex@x.com", leads.FieldCompany: testCompany}
	llm := &stubLLM{replies: []string{`{"Name":"N/A","Company":"Other","Email":"","Phone":"555 0100 999"}`}}
	ex := NewLLMFieldExtractor(llm, "", testCompany, logging.Discard())

	got, ok := ex.Extract(context.Background(), "phone is 555 0100 999", prior)
	require.True(t, ok)
	assert.Equal(t, "Alex", got[leads.FieldName])
	assert.Equal(t, "alex@x.com", got[leads.FieldEmail])
	assert.Equal(t, "555 0100 999", got[leads.FieldPhone])
	assert.Equal(t, testCompany, got[leads.FieldCompany])
	assert.NotContains(t, prior, leads.FieldPhone, "prior must not be mutated")
}

func TestExtractFailsClosed(t *testing.T) {
	prior := leads.Fields{leads.FieldName: "Alex"}
	cases := map[string]*stubLLM{
		"llm error": {err: errors.New("timeout")},
		"garbage":   {replies: []string{"I could not find anything"}},
		"empty":     {replies: []string{"```json\n{}\n```"}},
		"truncated": {replies: []string{`{"Name":"Bo"`}},
	}
	for name, llm := range cases {
		t.Run(name, func(t *testing.T) {
			ex := NewLLMFieldExtractor(llm, "", testCompany, logging.Discard())
			got, ok := ex.Extract(context.Background(), "hello", prior)
			assert.False(t, ok)
			assert.Equal(t, prior, got)
		})
	}
}
