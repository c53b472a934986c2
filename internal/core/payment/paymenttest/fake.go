// Package paymenttest 测试用的内存 Provider 和签名事件构造
package paymenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"terralumen/internal/core/payment"
)

const Secret = "whsec_test_secret"

type Fake struct {
	mu        sync.Mutex
	sessions  map[string]*payment.Session
	customers []payment.CustomerInput
	checkouts []payment.CheckoutInput
	// RetrieveErr 非空时 RetrieveSession 直接返回它
	RetrieveErr error
	CreateErr   error
}

var _ payment.Provider = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{sessions: map[string]*payment.Session{}}
}

func (f *Fake) PutSession(s *payment.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

func (f *Fake) Customers() []payment.CustomerInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payment.CustomerInput(nil), f.customers...)
}

func (f *Fake) Checkouts() []payment.CheckoutInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payment.CheckoutInput(nil), f.checkouts...)
}

func (f *Fake) CreateCustomer(_ context.Context, in payment.CustomerInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.customers = append(f.customers, in)
	return fmt.Sprintf("cus_fake_%d", len(f.customers)), nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, in payment.CheckoutInput) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.checkouts = append(f.checkouts, in)
	id := fmt.Sprintf("cs_fake_%d", len(f.checkouts))
	s := &payment.Session{
		ID:          id,
		CustomerRef: in.CustomerRef,
		Mode:        in.Mode,
		Metadata:    in.Metadata,
		URL:         "https://checkout.stripe.test/pay/" + id,
		Created:     time.Now().UTC(),
	}
	f.sessions[id] = s
	return s, nil
}

func (f *Fake) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RetrieveErr != nil {
		return nil, f.RetrieveErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", payment.ErrSessionNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (f *Fake) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	return payment.ParseWebhook(payload, signature, Secret)
}

// Sign 构造一个带 Stripe-Signature 头的事件
func Sign(id, typ string, created time.Time, object any) (payload []byte, header string) {
	obj, err := json.Marshal(object)
	if err != nil {
		panic(err)
	}
	payload, err = json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    typ,
		"created": created.Unix(),
		"data":    map[string]json.RawMessage{"object": obj},
	})
	if err != nil {
		panic(err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    Secret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func CheckoutObject(sessionID, customer, userID, membershipType string, amount int64) map[string]any {
	return map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"customer":       customer,
		"payment_intent": "pi_" + sessionID,
		"payment_status": "paid",
		"mode":           payment.ModePayment,
		"amount_total":   amount,
		"currency":       "usd",
		"metadata":       map[string]string{"user_id": userID, "membership_type": membershipType},
	}
}

func SubscriptionObject(id, customer, status string) map[string]any {
	return map[string]any{"id": id, "object": "subscription", "customer": customer, "status": status}
}

func InvoiceObject(id, customer, subscription string) map[string]any {
	return map[string]any{"id": id, "object": "invoice", "customer": customer, "subscription": subscription}
}
