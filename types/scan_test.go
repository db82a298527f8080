package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRunTransitions(t *testing.T) {
	run := &ScanRun{ScanID: "s-1", Status: ScanQueued}

	require.NoError(t, run.Transition(ScanRunning))
	require.NoError(t, run.Transition(ScanPartial))

	// Terminal states never move
	assert.Error(t, run.Transition(ScanRunning))
	assert.Error(t, run.Transition(ScanCompleted))
	assert.Equal(t, ScanPartial, run.Status)
}

func TestScanRunTransitionSkipsStates(t *testing.T) {
	run := &ScanRun{Status: ScanQueued}

	// Queued cannot jump straight to completed
	assert.Error(t, run.Transition(ScanCompleted))

	// But a systemic failure before any unit ran is allowed
	assert.NoError(t, run.Transition(ScanFailed))
}

func TestScanRunSummarize(t *testing.T) {
	tests := []struct {
		name  string
		units []UnitOutcome
		want  ScanStatus
	}{
		{
			"all completed",
			[]UnitOutcome{{Status: UnitCompleted}, {Status: UnitCompleted}},
			ScanCompleted,
		},
		{
			"one failed",
			[]UnitOutcome{{Status: UnitCompleted}, {Status: UnitFailed}},
			ScanPartial,
		},
		{
			"all failed",
			[]UnitOutcome{{Status: UnitFailed}, {Status: UnitAborted}},
			ScanFailed,
		},
		{
			"no units",
			nil,
			ScanCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &ScanRun{Units: tt.units}
			assert.Equal(t, tt.want, run.Summarize())
		})
	}
}

func TestConfidenceRank(t *testing.T) {
	assert.Less(t, ConfidenceLow.Rank(), ConfidenceMedium.Rank())
	assert.Less(t, ConfidenceMedium.Rank(), ConfidenceHigh.Rank())
	assert.Less(t, ConfidenceHigh.Rank(), ConfidenceCritical.Rank())
	assert.False(t, ConfidenceLevel("bogus").Valid())
}
