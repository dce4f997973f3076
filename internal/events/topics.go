package events

// Invoice lifecycle topics.
const (
	TopicInvoiceSubmitted = "invoice.submitted"
	TopicInvoiceConfirmed = "invoice.confirmed"
	TopicScheduleCreated  = "schedule.created"
	TopicPaymentApplied   = "payment.applied"
	TopicInvoicePaid      = "invoice.paid"
)

// DefaultTopics lists every topic the billing service emits.
func DefaultTopics() []string {
	return []string{
		TopicInvoiceSubmitted,
		TopicInvoiceConfirmed,
		TopicScheduleCreated,
		TopicPaymentApplied,
		TopicInvoicePaid,
	}
}
