package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
)

// QCStatus is the quality-control state of a batch
type QCStatus string

const (
	QCStatusPending     QCStatus = "pending"
	QCStatusQuarantined QCStatus = "quarantined"
	QCStatusInspected   QCStatus = "inspected"
	QCStatusReleased    QCStatus = "released"
)

// IsValid returns true if the status is known
func (s QCStatus) IsValid() bool {
	switch s {
	case QCStatusPending, QCStatusQuarantined, QCStatusInspected, QCStatusReleased:
		return true
	}
	return false
}

// AwaitingInspection is true for pending and quarantined, which are equivalent
// "not yet usable" states
func (s QCStatus) AwaitingInspection() bool {
	return s == QCStatusPending || s == QCStatusQuarantined
}

// QCResult is the outcome of the latest inspection
type QCResult string

const (
	QCResultNone QCResult = ""
	QCResultPass QCResult = "pass"
	QCResultFail QCResult = "fail"
)

// ParseQCResult accepts "pass" or "fail" (case-insensitive)
func ParseQCResult(s string) (QCResult, error) {
	switch QCResult(strings.ToLower(strings.TrimSpace(s))) {
	case QCResultPass:
		return QCResultPass, nil
	case QCResultFail:
		return QCResultFail, nil
	}
	return QCResultNone, shared.NewDomainError(shared.CodeInvalidInput,
		fmt.Sprintf("QC result must be pass or fail, got %q", s))
}

// QCState is an immutable QC snapshot. New states are produced only by the
// transition methods, which reject illegal moves with INVALID_TRANSITION.
type QCState struct {
	status QCStatus
	result QCResult
	at     *time.Time
	notes  string
}

// PendingQC is the initial state of a batch that requires inspection
func PendingQC() QCState {
	return QCState{status: QCStatusPending}
}

// AutoReleasedQC is the initial state of a batch whose item skips QC
func AutoReleasedQC(at time.Time) QCState {
	return QCState{status: QCStatusReleased, at: &at}
}

// RestoreQCState rebuilds a persisted state, rejecting impossible combinations
func RestoreQCState(status QCStatus, result QCResult, at *time.Time, notes string) (QCState, error) {
	if !status.IsValid() {
		return QCState{}, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown QC status %q", status))
	}
	if status == QCStatusInspected && result == QCResultNone {
		return QCState{}, shared.NewDomainError(shared.CodeInvalidInput, "inspected batch must carry a QC result")
	}
	if status == QCStatusReleased && result == QCResultFail {
		return QCState{}, shared.NewDomainError(shared.CodeInvalidInput, "failed batch cannot be released")
	}
	return QCState{status: status, result: result, at: at, notes: notes}, nil
}

// Accessors
func (q QCState) Status() QCStatus { return q.status }
func (q QCState) Result() QCResult { return q.result }
func (q QCState) At() *time.Time { return q.at }
func (q QCState) Notes() string { return q.notes }
func (q QCState) IsReleased() bool { return q.status == QCStatusReleased }
func (q QCState) IsFailed() bool { return q.result == QCResultFail }
func (q QCState) AwaitingRelease() bool { return q.status == QCStatusInspected && q.result == QCResultPass }

// Quarantine moves a pending batch into quarantine
func (q QCState) Quarantine(notes string, at time.Time) (QCState, error) {
	if q.status != QCStatusPending {
		return q, errInvalidTransition(q.status, "quarantine")
	}
	return QCState{status: QCStatusQuarantined, at: &at, notes: notes}, nil
}

// Inspect records an inspection result. Legal only from pending or quarantined.
// A failed inspection is terminal for the batch.
func (q QCState) Inspect(result QCResult, notes string, at time.Time) (QCState, error) {
	if result != QCResultPass && result != QCResultFail {
		return q, shared.NewDomainError(shared.CodeInvalidInput, "QC result must be pass or fail")
	}
	if !q.status.AwaitingInspection() {
		return q, errInvalidTransition(q.status, "inspect")
	}
	return QCState{status: QCStatusInspected, result: result, at: &at, notes: notes}, nil
}

// Release clears an inspected, passed batch for consumption
func (q QCState) Release(at time.Time) (QCState, error) {
	if q.IsFailed() {
		return q, shared.NewDomainError(shared.CodeInvalidTransition, "Cannot release a batch that failed inspection").
			WithDetail("qc_status", string(q.status))
	}
	if !q.AwaitingRelease() {
		return q, errInvalidTransition(q.status, "release")
	}
	return QCState{status: QCStatusReleased, result: q.result, at: &at, notes: q.notes}, nil
}
