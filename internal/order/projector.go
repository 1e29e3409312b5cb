package order

import "tokopaya-be/internal/gateway"

// NextStatus projects a payment status change onto the order. It returns
// the resulting order status and whether a transition applies; callers
// must leave the order untouched when ok is false.
//
// paid is sticky for every event; cancelled is sticky except for cancel
// itself, which re-affirms it. The guards are checked independently, so an
// expired order can still move to failed on a later failed-payment event.
// That asymmetry is inherited behavior, pinned by tests; do not "fix" it
// without product confirmation.
func NextStatus(current Status, ps gateway.PaymentStatus) (Status, bool) {
	switch ps {
	case gateway.StatusSuccess:
		if current != StatusPaid {
			return StatusPaid, true
		}
	case gateway.StatusFailed:
		if current != StatusPaid && current != StatusCancelled {
			return StatusFailed, true
		}
	case gateway.StatusExpire:
		if current != StatusPaid && current != StatusCancelled {
			return StatusExpired, true
		}
	case gateway.StatusCancel:
		if current != StatusPaid {
			return StatusCancelled, true
		}
	}
	return current, false
}
