package events

// Topic constants for domain events emitted by the routing core.
const (
	TopicPaymentCreated  = "payment.created"
	TopicPaymentCaptured = "payment.captured"
	TopicPaymentVoided   = "payment.voided"

	TopicPaymentSucceeded = "payment.succeeded"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentCanceled  = "payment.canceled"

	TopicRefundCreated   = "refund.created"
	TopicRefundSucceeded = "refund.succeeded"
	TopicRefundFailed    = "refund.failed"

	TopicDisputeCreated         = "dispute.created"
	TopicDisputeFundsWithdrawn  = "dispute.funds_withdrawn"
	TopicDisputeFundsReinstated = "dispute.funds_reinstated"
)

// DefaultTopics returns the canonical list of topics published by the core.
func DefaultTopics() []string {
	return []string{
		TopicPaymentCreated,
		TopicPaymentCaptured,
		TopicPaymentVoided,
		TopicPaymentSucceeded,
		TopicPaymentFailed,
		TopicPaymentCanceled,
		TopicRefundCreated,
		TopicRefundSucceeded,
		TopicRefundFailed,
		TopicDisputeCreated,
		TopicDisputeFundsWithdrawn,
		TopicDisputeFundsReinstated,
	}
}
