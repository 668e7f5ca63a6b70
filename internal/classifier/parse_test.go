package classifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	labels, err := ParseResponse("1. Airbnb\r\n\r\n2.   studio apartment\n  BED  \n4. 3bdr apartment\n", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"airbnb", "studio apartment", "bed", "3bdr apartment"}, labels)
}

func TestParseResponse_CountMismatch(t *testing.T) {
	_, err := ParseResponse("1. bed\n2. bedroom", 3)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CountMismatch, verr.Kind)
	assert.Equal(t, 3, verr.Want)
	assert.Equal(t, 2, verr.Got)
	assert.Contains(t, verr.Error(), "expected 3")

	_, err = ParseResponse("", 1)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, CountMismatch, verr.Kind)
}

func TestParseResponse_UnknownLabel(t *testing.T) {
	_, err := ParseResponse("1. bed\n2. studio apt\n3. other", 3)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, UnknownLabel, verr.Kind)
	assert.Equal(t, 2, verr.Line)
	assert.Equal(t, "studio apt", verr.Label)
	assert.Equal(t, "studio apartment", verr.Closest)
}

func TestParseResponse_ParenthesesAreNotStripped(t *testing.T) {
	_, err := ParseResponse("1. bedroom (room in shared apartment)", 1)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, UnknownLabel, verr.Kind)
}
