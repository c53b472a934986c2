package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	APIBase       string
	Timeout       time.Duration
	Logger        *zap.Logger
}

// StripeProvider 启动时构造一次，注入到 handler
type StripeProvider struct {
	sc            *client.API
	webhookSecret string
	timeout       time.Duration
}

func NewStripeProvider(o StripeOptions) *StripeProvider {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	cfg := func() *stripe.BackendConfig {
		c := &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: o.Timeout},
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     o.Logger.Named("stripe").Sugar(),
		}
		if o.APIBase != "" {
			c.URL = stripe.String(strings.TrimRight(o.APIBase, "/"))
		}
		return c
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg()),
	}
	return &StripeProvider{
		sc:            client.New(o.SecretKey, backends),
		webhookSecret: o.WebhookSecret,
		timeout:       o.Timeout,
	}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)
	c, err := p.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(in.CustomerRef),
		Mode:               stripe.String(in.Mode),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	s, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return fromStripeSession(s), nil
}

func (p *StripeProvider) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("stripe retrieve checkout session: %w", err)
	}
	return fromStripeSession(s), nil
}

func (p *StripeProvider) ParseEvent(payload []byte, signature string) (*Event, error) {
	return ParseWebhook(payload, signature, p.webhookSecret)
}

// ParseWebhook 先验签再解析，验签失败不碰 payload
func ParseWebhook(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	return decodeEvent(ev.ID, string(ev.Type), ev.Created, ev.Data)
}

func decodeEvent(id, typ string, created int64, data *stripe.EventData) (*Event, error) {
	if id == "" || data == nil {
		return nil, fmt.Errorf("%w: missing id or data", ErrMalformedPayload)
	}
	out := &Event{
		ID:      id,
		Type:    typ,
		Kind:    KindOf(typ),
		Created: time.Unix(created, 0).UTC(),
		Raw:     data.Raw,
	}
	switch out.Kind {
	case CheckoutCompleted:
		var s wireSession
		if err := unmarshal(data.Raw, &s); err != nil {
			return nil, err
		}
		out.Session = s.toSession()
	case SubscriptionUpdated, SubscriptionDeleted:
		var s wireSubscription
		if err := unmarshal(data.Raw, &s); err != nil {
			return nil, err
		}
		out.Subscription = &Subscription{ID: s.ID, CustomerRef: s.Customer, Status: s.Status}
	case InvoicePaymentFailed:
		var inv wireInvoice
		if err := unmarshal(data.Raw, &inv); err != nil {
			return nil, err
		}
		out.Invoice = inv.toInvoice()
	}
	return out, nil
}

func unmarshal(raw json.RawMessage, v interface{ valid() bool }) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !v.valid() {
		return fmt.Errorf("%w: object without id", ErrMalformedPayload)
	}
	return nil
}

// webhook 里的对象不展开，关联字段都是 id 字符串
type wireSession struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Mode          string            `json:"mode"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	Created       int64             `json:"created"`
}

func (s *wireSession) valid() bool { return s.ID != "" }

func (s *wireSession) toSession() *Session {
	return &Session{
		ID:               s.ID,
		CustomerRef:      s.Customer,
		SubscriptionRef:  s.Subscription,
		PaymentIntentRef: s.PaymentIntent,
		Paid:             settled(stripe.CheckoutSessionPaymentStatus(s.PaymentStatus)),
		Mode:             s.Mode,
		AmountTotal:      s.AmountTotal,
		Currency:         strings.ToUpper(s.Currency),
		Metadata:         s.Metadata,
		Created:          unixTime(s.Created),
	}
}

type wireSubscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

func (s *wireSubscription) valid() bool { return s.ID != "" }

type wireInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i *wireInvoice) valid() bool { return i.ID != "" }

// 新版 API 把 subscription 挪到了 parent.subscription_details 下
func (i *wireInvoice) toInvoice() *Invoice {
	sub := i.Subscription
	if sub == "" && i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		sub = i.Parent.SubscriptionDetails.Subscription
	}
	return &Invoice{ID: i.ID, CustomerRef: i.Customer, SubscriptionRef: sub}
}

// unixTime 缺省的 0 保持为零值，不当成 1970 年
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// settled 试用期和全额优惠券的结账是 no_payment_required，与 paid 一样视为已结清
func settled(st stripe.CheckoutSessionPaymentStatus) bool {
	return st == stripe.CheckoutSessionPaymentStatusPaid || st == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

func fromStripeSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:          s.ID,
		Paid:        settled(s.PaymentStatus),
		Mode:        string(s.Mode),
		AmountTotal: s.AmountTotal,
		Currency:    strings.ToUpper(string(s.Currency)),
		Metadata:    s.Metadata,
		URL:         s.URL,
		Created:     unixTime(s.Created),
	}
	if s.Customer != nil {
		out.CustomerRef = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionRef = s.Subscription.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentRef = s.PaymentIntent.ID
	}
	return out
}
