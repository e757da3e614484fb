package dfserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundIsDistinctType(t *testing.T) {
	err := NotFound("/a/b")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "/a/b", nf.Path)
}

func TestCallerStreamNeverReclassifiedAsInfrastructure(t *testing.T) {
	base := errors.New("disk full")
	csErr := CallerStream(base)

	// Simulate an infrastructure-layer function wrapping whatever bubbled up.
	wrapped := Infrastructure("copyToSink", csErr)

	assert.True(t, IsCallerStream(wrapped), "a caller-stream error must stay identifiable after being wrapped by an infrastructure op")
}

func TestCallerStreamDoubleWrapIsIdempotent(t *testing.T) {
	base := errors.New("boom")
	once := CallerStream(base)
	twice := CallerStream(once)
	assert.Same(t, once, twice)
}

func TestInvalidArgumentMessage(t *testing.T) {
	err := InvalidArgument("path %q must be absolute", "rel/path")
	assert.Contains(t, err.Error(), "rel/path")
}
