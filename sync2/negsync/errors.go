package negsync

import (
	"fmt"
	"time"
)

// SyncTimeoutError is returned when the reconciliation doesn't complete before the
// deadline.
type SyncTimeoutError struct {
	SubscriptionID string
	Timeout        time.Duration
	Rounds         int
}

func (*SyncTimeoutError) Is(target error) bool {
	_, ok := target.(*SyncTimeoutError)
	return ok
}

func (err *SyncTimeoutError) Error() string {
	return fmt.Sprintf("sync %s timed out after %v (%d rounds)",
		err.SubscriptionID, err.Timeout, err.Rounds)
}

// RemoteReconciliationError is returned when the peer aborts the reconciliation
// with an explicit error.
type RemoteReconciliationError struct {
	SubscriptionID string
	Reason         string
}

func (*RemoteReconciliationError) Is(target error) bool {
	_, ok := target.(*RemoteReconciliationError)
	return ok
}

func (err *RemoteReconciliationError) Error() string {
	return fmt.Sprintf("sync %s: peer error: %s", err.SubscriptionID, err.Reason)
}
