package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oilflow/internal/engine"
	"github.com/roach88/oilflow/internal/workflow"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"}, func(io.Writer) {
		t.Fatal("text renderer must not run in json mode")
	})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	require.NoError(t, formatter.Error("NOT_PENDING", "DO-001A/MUS-15L is not pending", map[string]string{"field": "rows"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_PENDING", resp.Error.Code)
	assert.Equal(t, "DO-001A/MUS-15L is not pending", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("ignored", func(w io.Writer) { fmt.Fprintln(w, "3 rows pending") }))
	assert.Equal(t, "3 rows pending\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("plain", nil))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("MISSING_FIELD", "vehicle number is required", map[string]string{"field": "vehicleNumber"}))
	assert.Contains(t, buf.String(), "Error [MISSING_FIELD]: vehicle number is required")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("MISSING_FIELD", "vehicle number is required", map[string]string{"field": "vehicleNumber"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("appended %s", "ev-001")

			assert.Empty(t, out.String(), "diagnostics never go to the data stream")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "appended ev-001")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestOutputFormatter_Failure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{
			name:     "validation",
			err:      workflow.NewValidationError(workflow.ErrCodeNotPending, "rows", "not pending"),
			wantCode: ExitFailure,
			wantText: "Error [NOT_PENDING]: not pending",
		},
		{
			name:     "busy",
			err:      fmt.Errorf("advance: %w", workflow.ErrBusy),
			wantCode: ExitFailure,
			wantText: "Error [BUSY]",
		},
		{
			name:     "not found",
			err:      &engine.NotFoundError{OrderID: "DO-404"},
			wantCode: ExitFailure,
			wantText: "Error [NOT_FOUND]",
		},
		{
			name:     "unknown stage",
			err:      fmt.Errorf("%w: %q", workflow.ErrUnknownStage, "Teleport"),
			wantCode: ExitCommandError,
			wantText: "Error [UNKNOWN_STAGE]",
		},
		{
			name:     "other",
			err:      errors.New("disk on fire"),
			wantCode: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf}

			err := formatter.Failure(tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)
			if tt.wantText != "" {
				assert.Contains(t, buf.String(), tt.wantText)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	inner := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to open database", inner)
	assert.Equal(t, "failed to open database: no such file", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", err)))

	assert.Equal(t, "2 scenario(s) failed", NewExitError(ExitFailure, "2 scenario(s) failed").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
