package membership

import "errors"

var (
	ErrMissingSession     = errors.New("missing checkout session id")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotOwner           = errors.New("checkout session belongs to another customer")
	ErrProvider           = errors.New("payment provider error")
	ErrPriceNotConfigured = errors.New("no price configured for membership type")
)
