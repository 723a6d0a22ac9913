package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_EmptyIsValid(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
}

func TestValidationResult_AddError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/states/0/action", ErrCodeParse, "unknown keyword")

	assert.False(t, r.Valid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "/states/0/action", r.Errors[0].Path)
	assert.Equal(t, ErrCodeParse, r.Errors[0].Code)
	assert.Equal(t, "unknown keyword", r.Errors[0].Message)
	assert.Equal(t, SeverityError, r.Errors[0].Severity)
}

func TestValidationResult_AddErrorf(t *testing.T) {
	r := &ValidationResult{}
	r.AddErrorf("/states/1", ErrCodeValidation, "duplicate state id %q", "fetch")

	require.Len(t, r.Errors, 1)
	assert.Equal(t, `duplicate state id "fetch"`, r.Errors[0].Message)
}

func TestValidationResult_AddWarning(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("/states/2", ErrCodeValidation, "state has no description")

	assert.True(t, r.Valid(), "warnings alone should not make result invalid")
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestValidationResult_Merge(t *testing.T) {
	r1 := &ValidationResult{}
	r1.AddError("/", ErrCodeValidation, "err1")
	r1.AddWarning("/", ErrCodeValidation, "warn1")

	r2 := &ValidationResult{}
	r2.AddError("/states/0", ErrCodeParse, "err2")
	r2.AddWarning("/states/1", ErrCodeValidation, "warn2")

	r1.Merge(r2)

	assert.Len(t, r1.Errors, 2)
	assert.Len(t, r1.Warnings, 2)
}

func TestValidationResult_MergeNil(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/", ErrCodeValidation, "err")
	r.Merge(nil)
	assert.Len(t, r.Errors, 1)
}

func TestValidationResult_ToError_Valid(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("/", ErrCodeValidation, "just a warning")
	assert.Nil(t, r.ToError())
}

func TestValidationResult_ToError_SingleError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/start", ErrCodeValidation, "start state not found")

	err := r.ToError()
	require.NotNil(t, err)

	wendErr, ok := err.(*WendError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, wendErr.Code)
	assert.Equal(t, "start state not found", wendErr.Message)
	assert.Equal(t, 1, wendErr.Details["error_count"])
}

func TestValidationResult_ToError_MultipleErrors(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("/", ErrCodeValidation, "err1")
	r.AddError("/", ErrCodeValidation, "err2")
	r.AddWarning("/", ErrCodeValidation, "warn1")

	err := r.ToError()
	require.NotNil(t, err)

	wendErr, ok := err.(*WendError)
	require.True(t, ok)
	assert.Contains(t, wendErr.Message, "2 errors")
	assert.Equal(t, 2, wendErr.Details["error_count"])
	assert.Equal(t, 1, wendErr.Details["warning_count"])
}
