package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunStatusNew, RunStatusProcess, true},
		{RunStatusNew, RunStatusError, true},
		{RunStatusNew, RunStatusOK, false},
		{RunStatusProcess, RunStatusOK, true},
		{RunStatusProcess, RunStatusError, true},
		{RunStatusProcess, RunStatusNew, false},
		{RunStatusOK, RunStatusError, false},
		{RunStatusError, RunStatusOK, false},
		{RunStatusError, RunStatusProcess, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusNew.Terminal())
	assert.False(t, RunStatusProcess.Terminal())
	assert.True(t, RunStatusOK.Terminal())
	assert.True(t, RunStatusError.Terminal())
}

func TestRunLog_Advance(t *testing.T) {
	r := &RunLog{Status: RunStatusNew}

	require.NoError(t, r.Advance(RunStatusProcess, ""))
	assert.Equal(t, RunStatusProcess, r.Status)
	assert.Empty(t, r.Message)

	require.NoError(t, r.Advance(RunStatusOK, "done"))
	assert.Equal(t, RunStatusOK, r.Status)
	assert.Equal(t, "done", r.Message)
	assert.False(t, r.UpdatedAt.IsZero())
}

func TestRunLog_Advance_Regression(t *testing.T) {
	r := &RunLog{Status: RunStatusOK, Message: "done"}

	err := r.Advance(RunStatusProcess, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatusRegression))
	assert.Equal(t, RunStatusOK, r.Status)
	assert.Equal(t, "done", r.Message)
}

func TestRunLog_Advance_ErrorNeedsMessage(t *testing.T) {
	r := &RunLog{Status: RunStatusProcess}

	require.NoError(t, r.Advance(RunStatusError, ""))
	assert.Equal(t, "unknown error", r.Message)
}
