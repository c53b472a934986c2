package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrNotConfigured    = errors.New("payment provider not configured")
)

type EventKind int

const (
	Unrecognized EventKind = iota
	CheckoutCompleted
	SubscriptionUpdated
	SubscriptionDeleted
	InvoicePaymentFailed
)

var kindNames = map[EventKind]string{
	Unrecognized:         "unrecognized",
	CheckoutCompleted:    "checkout_completed",
	SubscriptionUpdated:  "subscription_updated",
	SubscriptionDeleted:  "subscription_deleted",
	InvoicePaymentFailed: "invoice_payment_failed",
}

func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unrecognized"
}

// KindOf 事件类型白名单，其余一律 Unrecognized
func KindOf(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return CheckoutCompleted
	case "customer.subscription.updated":
		return SubscriptionUpdated
	case "customer.subscription.deleted":
		return SubscriptionDeleted
	case "invoice.payment_failed":
		return InvoicePaymentFailed
	default:
		return Unrecognized
	}
}

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

type Session struct {
	ID               string
	CustomerRef      string
	SubscriptionRef  string
	PaymentIntentRef string
	Paid             bool // paid 或 no_payment_required
	Mode             string
	AmountTotal      int64 // 最小货币单位
	Currency         string
	Metadata         map[string]string
	URL              string
	Created          time.Time
}

type Subscription struct {
	ID          string
	CustomerRef string
	Status      string
}

type Invoice struct {
	ID              string
	CustomerRef     string
	SubscriptionRef string
}

// Event 验签之后的事件；Kind 对应的字段非空
type Event struct {
	ID           string
	Type         string
	Kind         EventKind
	Created      time.Time
	Raw          []byte
	Session      *Session
	Subscription *Subscription
	Invoice      *Invoice
}

type CustomerInput struct {
	Email  string
	Name   string
	UserID string
}

type CheckoutInput struct {
	CustomerRef string
	PriceID     string
	Mode        string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type Provider interface {
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
	ParseEvent(payload []byte, signature string) (*Event, error)
}
