package membership

import (
	"errors"
	"fmt"

	"terralumen/internal/domain"
)

type Trigger int

const (
	PaymentSucceeded Trigger = iota + 1
	PaymentLapsed
	Cancelled
)

func (t Trigger) String() string {
	switch t {
	case PaymentSucceeded:
		return "payment_succeeded"
	case PaymentLapsed:
		return "payment_lapsed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var ErrIllegalTransition = errors.New("illegal membership transition")

// Next 纯函数，不碰数据库
func Next(from domain.MembershipStatus, t Trigger) (domain.MembershipStatus, error) {
	switch t {
	case PaymentSucceeded:
		switch from {
		case domain.StatusPending, domain.StatusActive, domain.StatusExpired, domain.StatusInactive:
			return domain.StatusActive, nil
		}
	case PaymentLapsed:
		switch from {
		case domain.StatusActive, domain.StatusExpired:
			return domain.StatusExpired, nil
		}
	case Cancelled:
		switch from {
		case domain.StatusActive, domain.StatusExpired, domain.StatusInactive:
			return domain.StatusInactive, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, t, from)
}
