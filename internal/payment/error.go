package payment

import "errors"

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrNotificationNotFound = errors.New("payment notification not found")

	// ErrPaymentAlreadySucceeded guards cancel: success is terminal and
	// unreversible by design.
	ErrPaymentAlreadySucceeded = errors.New("cannot cancel successful payment")

	ErrOrderAlreadyPaid = errors.New("order already paid")

	// ErrGateway wraps upstream charge/query failures; local state stays
	// untouched when it is returned.
	ErrGateway = errors.New("payment gateway error")

	ErrInvalidMethod = errors.New("invalid payment method")
)
