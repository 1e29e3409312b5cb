package gateway

// PaymentStatus is the system's internal payment status vocabulary.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusSuccess PaymentStatus = "success"
	StatusFailed  PaymentStatus = "failed"
	StatusCancel  PaymentStatus = "cancel"
	StatusExpire  PaymentStatus = "expire"
)

// MapStatus maps the gateway's transaction/fraud status vocabulary to the
// internal payment status. Pure and total: unrecognized statuses come back
// as pending so an unknown webhook never flips a payment to a terminal
// state. For capture the fraud status decides whether funds are actually
// settled.
func MapStatus(transactionStatus, fraudStatus string) PaymentStatus {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return StatusSuccess
		}
		return StatusPending
	case "settlement":
		return StatusSuccess
	case "cancel", "deny":
		return StatusFailed
	case "expire":
		return StatusExpire
	case "pending":
		return StatusPending
	}
	return StatusPending
}
