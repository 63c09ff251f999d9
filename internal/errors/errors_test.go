package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationErrorIsFatal(t *testing.T) {
	err := ConfigurationErrorf("missing %s", "NEO4J_URI")
	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrorTypeConfiguration, GetType(err))
	assert.Equal(t, SeverityCritical, GetSeverity(err))
}

func TestUpstreamErrorIsNotFatal(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := UpstreamError(cause, "geocoder request failed")
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrorTypeUpstreamUnavailable, GetType(err))
	assert.ErrorIs(t, err, cause)
}

func TestValidationErrorNeverFatal(t *testing.T) {
	err := ValidationErrorf("placeholder entity %q dropped", "unknown")
	assert.False(t, err.IsFatal())
	assert.Equal(t, SeverityLow, err.Severity)
}

func TestWithContextAccumulates(t *testing.T) {
	err := GraphWriteErrorf(errors.New("constraint violation"), "append failed").
		WithContext("hyperedge_id", "he_abc123").
		WithContext("sentence_index", 3)

	assert.Equal(t, "he_abc123", err.Context["hyperedge_id"])
	assert.Equal(t, 3, err.Context["sentence_index"])
}

func TestIsMatchesOnType(t *testing.T) {
	a := SchemaViolationError("bad json")
	b := SchemaViolationError("also bad")
	c := ValidationError("unrelated")

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestGetTypeDefaultsForPlainError(t *testing.T) {
	plain := errors.New("not a structured error")
	assert.Equal(t, ErrorTypeInternal, GetType(plain))
	assert.Equal(t, SeverityMedium, GetSeverity(plain))
	assert.False(t, IsFatal(plain))
}
