package settlement

import "errors"

// Settlement errors are local to one request or webhook event; nothing is
// retried automatically here. Handlers map them onto HTTP statuses, the
// webhook path logs-and-acknowledges everything except signature failures.
var (
	ErrNotFound           = errors.New("record not found")
	ErrForbidden          = errors.New("access forbidden")
	ErrUnavailable        = errors.New("listing unavailable")
	ErrInvalidState       = errors.New("invalid lifecycle state")
	ErrConflict           = errors.New("settlement conflict")
	ErrPaymentIncomplete  = errors.New("payment incomplete")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
