// Package domain: send-state machine, recall statuses, ineligibility
// reasons, and the closed event-type enum for the audit log.
package domain

// SendState is the lifecycle state of a Touch.
type SendState string

// Send states. SENDING is a transient claim state; the rest are terminal for
// a given attempt. An operator may reset a row back to READY out of band,
// which is outside this state machine's contract.
const (
	SendStateReady     SendState = "READY"
	SendStateSending   SendState = "SENDING"
	SendStateSent      SendState = "SENT"
	SendStateWouldSend SendState = "WOULD_SEND"
	SendStateError     SendState = "ERROR"
	SendStateSkipped   SendState = "SKIPPED"
)

// TerminalSuccess reports whether s is a terminal success state. Touch
// creation and claim runs never move a row out of a terminal success state.
func (s SendState) TerminalSuccess() bool {
	return s == SendStateSent || s == SendStateWouldSend
}

// Resettable reports whether the touch factory may recompute s from current
// eligibility. Only READY, SKIPPED, and empty states are fair game; in-flight
// and completed attempts are left alone.
func (s SendState) Resettable() bool {
	return s == SendStateReady || s == SendStateSkipped || s == ""
}

// Recall statuses derived from the recall due date and the configured window.
const (
	RecallOverdue = "OVERDUE"
	RecallDue     = "DUE"
	RecallNotDue  = "NOT_DUE"
	RecallUnknown = "UNKNOWN"
)

// Ineligibility reasons, in the order they are checked. Eligibility
// evaluation short-circuits, so a queue entry carries at most one reason.
const (
	ReasonNoPhone     = "NO_PHONE"
	ReasonDoNotText   = "DO_NOT_TEXT"
	ReasonComplaint   = "COMPLAINT"
	ReasonNotInWindow = "NOT_IN_WINDOW"
)

// ReasonStopReceived marks a touch skipped by the claim-phase safety filter
// after an inbound STOP landed on the row.
const ReasonStopReceived = "STOP_RECEIVED"

// Terminal provider delivery statuses. Once one of these is recorded on a
// touch it is never downgraded by later callbacks.
const (
	ProviderDelivered   = "delivered"
	ProviderUndelivered = "undelivered"
	ProviderFailed      = "failed"
)

// TerminalProviderStatus reports whether status is a terminal delivery status.
func TerminalProviderStatus(status string) bool {
	switch status {
	case ProviderDelivered, ProviderUndelivered, ProviderFailed:
		return true
	}
	return false
}

// EventType identifies one kind of audit-log entry.
type EventType string

// Audit event types.
const (
	EventImportStart        EventType = "IMPORT_START"
	EventImportPass         EventType = "IMPORT_PASS"
	EventImportFail         EventType = "IMPORT_FAIL"
	EventRefreshStart       EventType = "REFRESH_START"
	EventRefreshPass        EventType = "REFRESH_PASS"
	EventRefreshFail        EventType = "REFRESH_FAIL"
	EventQueueStart         EventType = "QUEUE_START"
	EventQueuePass          EventType = "QUEUE_PASS"
	EventQueueFail          EventType = "QUEUE_FAIL"
	EventCreateTouchesStart EventType = "RUN_CREATE_TOUCHES_START"
	EventCreateTouchesPass  EventType = "RUN_CREATE_TOUCHES_PASS"
	EventCreateTouchesFail  EventType = "RUN_CREATE_TOUCHES_FAIL"
	EventSendStart          EventType = "RUN_SEND_START"
	EventSendPass           EventType = "RUN_SEND_PASS"
	EventSendFail           EventType = "RUN_SEND_FAIL"
	EventTouchSent          EventType = "TOUCH_SENT"
	EventTouchSkipped       EventType = "TOUCH_SKIPPED"
	EventTouchError         EventType = "TOUCH_ERROR"
	EventProviderStatus     EventType = "PROVIDER_STATUS"
	EventProviderClick      EventType = "PROVIDER_CLICK"
	EventProviderInbound    EventType = "PROVIDER_INBOUND"
	EventRunSummary         EventType = "RUN_SUMMARY"
	EventInvariantsPass     EventType = "RUN_INVARIANTS_PASS"
	EventInvariantsFail     EventType = "RUN_INVARIANTS_FAIL"
	EventError              EventType = "ERROR"
)
