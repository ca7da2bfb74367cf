package inventory

import (
	"testing"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQCState_PassThenRelease(t *testing.T) {
	q := PendingQC()

	inspected, err := q.Inspect(QCResultPass, "colour and smell ok", day(1))
	require.NoError(t, err)
	assert.Equal(t, QCStatusInspected, inspected.Status())
	assert.Equal(t, QCResultPass, inspected.Result())
	assert.Equal(t, day(1), *inspected.At())

	released, err := inspected.Release(day(2))
	require.NoError(t, err)
	assert.True(t, released.IsReleased())
	assert.Equal(t, QCResultPass, released.Result())

	assert.Equal(t, QCStatusPending, q.Status(), "transitions return new states")
}

func TestQCState_IllegalTransitions(t *testing.T) {
	failed, err := PendingQC().Inspect(QCResultFail, "mould", day(1))
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{"release pending", func() error { _, err := PendingQC().Release(day(1)); return err }},
		{"release failed", func() error { _, err := failed.Release(day(2)); return err }},
		{"inspect twice", func() error { _, err := failed.Inspect(QCResultPass, "", day(2)); return err }},
		{"inspect released", func() error { _, err := AutoReleasedQC(day(0)).Inspect(QCResultPass, "", day(2)); return err }},
		{"quarantine inspected", func() error { _, err := failed.Quarantine("", day(2)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, shared.CodeInvalidTransition, shared.ErrorCode(tt.run()))
		})
	}
}

func TestQCState_QuarantineIsInspectable(t *testing.T) {
	q, err := PendingQC().Quarantine("supplier recall check", day(1))
	require.NoError(t, err)
	assert.Equal(t, QCStatusQuarantined, q.Status())
	assert.True(t, q.Status().AwaitingInspection())

	q, err = q.Inspect(QCResultPass, "", day(2))
	require.NoError(t, err)
	assert.True(t, q.AwaitingRelease())
}

func TestParseQCResult(t *testing.T) {
	r, err := ParseQCResult(" PASS ")
	require.NoError(t, err)
	assert.Equal(t, QCResultPass, r)

	_, err = ParseQCResult("maybe")
	assert.Equal(t, shared.CodeInvalidInput, shared.ErrorCode(err))

	_, err = PendingQC().Inspect(QCResultNone, "", day(1))
	assert.Error(t, err)
}
