package order

// Status is the payment status of an order. Orders start unpaid; paid and
// failed are terminal, no further transition is allowed once either is
// reached. Webhooks can be delivered late or twice, so every transition must
// go through the conditional update in the repository.
type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
	StatusFailed Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}
