package membership

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"terralumen/internal/core/payment"
	"terralumen/internal/domain"
)

type Options struct {
	Store    domain.Store
	Provider payment.Provider
	Logger   *zap.Logger
	// SuccessURL 不带 query，session_id 由这里拼上
	SuccessURL string
	CancelURL  string
	// 会员类型 -> price id
	Prices map[string]string
	Now    func() time.Time
}

// Service 会员状态的唯一写入方
type Service struct {
	store      domain.Store
	provider   payment.Provider
	log        *zap.Logger
	successURL string
	cancelURL  string
	prices     map[string]string
	now        func() time.Time
}

func NewService(o Options) *Service {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Service{
		store:      o.Store,
		provider:   o.Provider,
		log:        o.Logger.Named("membership"),
		successURL: o.SuccessURL,
		cancelURL:  o.CancelURL,
		prices:     o.Prices,
		now:        o.Now,
	}
}

// purchase 一次已确认付款的事实，两条入口共用
type purchase struct {
	session *payment.Session
	tier    domain.MembershipType
	source  string
	at      time.Time
}

func (p purchase) reference() string {
	if p.session.PaymentIntentRef != "" {
		return p.session.PaymentIntentRef
	}
	return p.session.ID
}

// applyPurchase 必须在事务里、已锁住 u 之后调用。
// 流水按 reference 去重，只有新插入的那一次才推进状态。
func (s *Service) applyPurchase(ctx context.Context, tx domain.UnitOfWork, u *domain.User, p purchase) (bool, error) {
	currency := strings.ToUpper(p.session.Currency)
	if currency == "" {
		currency = "USD"
	}
	entry := &domain.MembershipTransaction{
		UserID:                u.ID,
		Reference:             p.reference(),
		StripePaymentIntentID: optional(p.session.PaymentIntentRef),
		StripeSessionID:       optional(p.session.ID),
		StripeSubscriptionID:  optional(p.session.SubscriptionRef),
		Amount:                decimal.New(p.session.AmountTotal, -2),
		Currency:              currency,
		Status:                domain.PaymentCompleted,
		MembershipType:        p.tier,
		Source:                p.source,
		EventAt:               p.at,
	}
	inserted, err := tx.Transactions().Append(ctx, entry)
	if err != nil {
		return false, err
	}
	ledgerAppendsTotal.WithLabelValues(p.source, strconv.FormatBool(inserted)).Inc()
	if !inserted {
		return false, nil
	}

	if stale(u, p.at) {
		// 付款照记，状态不回退到更早的事件
		s.log.Warn("purchase older than last status change, ledger only",
			zap.String("user_id", u.ID), zap.String("reference", entry.Reference))
		return true, nil
	}

	from := u.MembershipStatus
	to, _ := Next(from, PaymentSucceeded)
	tier := p.tier
	u.MembershipType = &tier
	u.MembershipStatus = to
	if tier.Recurring() && p.session.SubscriptionRef != "" {
		u.StripeSubscriptionID = optional(p.session.SubscriptionRef)
	} else {
		u.StripeSubscriptionID = nil
	}
	if u.StripeCustomerID == nil && p.session.CustomerRef != "" {
		u.StripeCustomerID = optional(p.session.CustomerRef)
	}
	at := p.at
	u.StatusEventAt = &at
	if err := tx.Users().UpdateMembership(ctx, u); err != nil {
		return false, err
	}
	transitionsTotal.WithLabelValues(PaymentSucceeded.String(), string(from), string(to)).Inc()
	s.log.Info("membership activated",
		zap.String("user_id", u.ID),
		zap.String("tier", string(tier)),
		zap.String("from", string(from)),
		zap.String("reference", entry.Reference),
		zap.String("source", p.source))
	return true, nil
}

func stale(u *domain.User, at time.Time) bool {
	return u.StatusEventAt != nil && at.Before(*u.StatusEventAt)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
