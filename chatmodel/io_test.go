package chatmodel

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ContentProvider = (*InputRequest)(nil)
	_ InputParser     = (*InputRequest)(nil)
	_ ContentProvider = OutputResult{}
)

func TestInputRequest(t *testing.T) {
	t.Parallel()

	r := &InputRequest{}
	err := r.ParseInput(`{"input":"two pad thai to the office, please"}`)
	require.NoError(t, err)
	assert.Equal(t, "two pad thai to the office, please", r.Input)
	assert.Equal(t, r.Input, r.GetContent())

	assert.Equal(t, "cancel order o_9001", NewInputRequest("cancel order o_9001").Input)
}

func TestInputRequest_ParseInputError(t *testing.T) {
	t.Parallel()

	r := &InputRequest{}
	err := r.ParseInput("{broken}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailedUnmarshalInput)

	// The sentinel must survive further wrapping, since it travels back
	// to the model as a tool result.
	wrapped := errors.WithMessage(err, "tool call failed")
	assert.ErrorIs(t, wrapped, ErrFailedUnmarshalInput)
	assert.Contains(t, wrapped.Error(), "check the schema")
}

func TestInputRequest_JSONSchemaExtend(t *testing.T) {
	t.Parallel()

	sc := &jsonschema.Schema{}
	InputRequest{}.JSONSchemaExtend(sc)
	assert.Equal(t, "Input Request", sc.Title)
}

func TestOutputResult(t *testing.T) {
	t.Parallel()

	r := OutputResult{Content: "Order o_9001 is confirmed."}
	assert.Equal(t, "Order o_9001 is confirmed.", r.GetContent())

	assert.Equal(t, "Booked for 19:30.", NewOutputResult("Booked for 19:30.").Content)
}
