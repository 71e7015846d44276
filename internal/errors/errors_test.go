package errors

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportErrorError(t *testing.T) {
	err := NewCompileError(CodeTemplateSyntax, "bad detail band", fmt.Errorf("line 3"))
	err.WithReport("sales").WithFile("/tmp/sales.rpt")

	msg := err.Error()
	assert.Contains(t, msg, "[TEMPLATE_SYNTAX]")
	assert.Contains(t, msg, "report:sales")
	assert.Contains(t, msg, "/tmp/sales.rpt")
	assert.Contains(t, msg, "bad detail band: line 3")
}

func TestReportErrorIs(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{"type only sentinel", NewNotFoundError(CodeReportNotFound, "x"), ErrNotFound, true},
		{"other type", NewNotFoundError(CodeReportNotFound, "x"), ErrValidation, false},
		{"interrupted matches generation", NewInterruptedError(nil), ErrGeneration, true},
		{"interrupted matches interrupted", NewInterruptedError(nil), ErrInterrupted, true},
		{"fill failure is not interrupted", NewGenerationError(CodeFillFailed, "x", nil), ErrInterrupted, false},
		{"wrapped", fmt.Errorf("outer: %w", NewTimeoutError("late")), ErrTimeout, true},
		{"foreign error", errors.New("boom"), ErrNotFound, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, errors.Is(tc.err, tc.target))
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError(CodeTemplateNotFound, "missing")))
	assert.True(t, IsValidation(NewValidationError(CodeUnsupportedFormat, "csv")))
	assert.True(t, IsCompile(NewCompileError(CodeTemplateSyntax, "x", nil)))
	assert.True(t, IsTimeout(NewTimeoutError("x")))
	assert.True(t, IsInterrupted(NewInterruptedError(nil)))
	assert.True(t, IsNotConfigured(NewNotConfiguredError(CodeSchemaUnavailable, "x")))
	assert.False(t, IsTimeout(nil))
	assert.Equal(t, ErrorTypeInternal, GetErrorType(errors.New("plain")))
	assert.Equal(t, ErrorTypeIO, GetErrorType(NewIOError(CodeTemplateRead, "x", nil)))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeGeneration, CodeFillFailed, "x"))

	inner := NewIOError(CodeTemplateRead, "read", errors.New("eof")).WithReport("r1").WithFile("a.rpt")
	wrapped := Wrap(inner, ErrorTypeGeneration, CodeFillFailed, "fill failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, "r1", wrapped.ReportID)
	assert.Equal(t, "a.rpt", wrapped.FilePath)
	assert.True(t, wrapped.Recoverable)
	assert.True(t, errors.Is(wrapped, ErrGeneration))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())
	assert.NoError(t, collector.Err())

	collector.Add("Required parameter missing: from")
	collector.Add("")
	collector.AddError(nil)
	collector.Add("Required parameter missing: to")
	collector.AddError(errors.New("Parameter limit must be <= 10"))

	require.True(t, collector.HasErrors())
	assert.Len(t, collector.Violations(), 3)

	err := collector.Err()
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	var re *ReportError
	require.True(t, errors.As(err, &re))
	assert.Equal(t,
		"parameter validation failed: Required parameter missing: from, Required parameter missing: to, Parameter limit must be <= 10",
		re.Message)

	collector.Clear()
	assert.False(t, collector.HasErrors())
}

func TestErrorCollectorConcurrent(t *testing.T) {
	collector := NewErrorCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			collector.Add(fmt.Sprintf("violation %d", i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.Violations(), 50)
}
