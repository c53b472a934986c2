package membership

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"terralumen/internal/core/payment"
	"terralumen/internal/domain"
)

// StartCheckout 返回 Stripe 托管收银台地址
func (s *Service) StartCheckout(ctx context.Context, userID, rawType, priceID string) (string, error) {
	tier, err := domain.ParseMembershipType(rawType)
	if err != nil {
		return "", err
	}
	// 配置里有价格就以配置为准，表单里的 price_id 只在没配置时生效
	price := s.prices[string(tier)]
	if price == "" {
		price = strings.TrimSpace(priceID)
	}
	if price == "" {
		return "", fmt.Errorf("%w: %s", ErrPriceNotConfigured, tier)
	}

	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}

	customer, err := s.ensureCustomer(ctx, u)
	if err != nil {
		return "", err
	}

	mode := payment.ModePayment
	if tier.Recurring() {
		mode = payment.ModeSubscription
	}
	sess, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutInput{
		CustomerRef: customer,
		PriceID:     price,
		Mode:        mode,
		SuccessURL:  withSessionPlaceholder(s.successURL),
		CancelURL:   s.cancelURL,
		Metadata: map[string]string{
			"user_id":         u.ID,
			"membership_type": string(tier),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	s.log.Info("checkout session created",
		zap.String("user_id", u.ID), zap.String("session_id", sess.ID), zap.String("mode", mode))
	return sess.URL, nil
}

// ensureCustomer 首次结账时创建 Stripe 客户；并发下以先写入的为准
func (s *Service) ensureCustomer(ctx context.Context, u *domain.User) (string, error) {
	if ref := u.CustomerRef(); ref != "" {
		return ref, nil
	}
	ref, err := s.provider.CreateCustomer(ctx, payment.CustomerInput{Email: u.Email, Name: u.Name, UserID: u.ID})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}
	bound, err := s.store.Users().BindCustomerRef(ctx, u.ID, ref)
	if err != nil {
		return "", err
	}
	if bound {
		return ref, nil
	}
	fresh, err := s.store.Users().FindByID(ctx, u.ID)
	if err != nil {
		return "", err
	}
	if fresh == nil || fresh.CustomerRef() == "" {
		return "", ErrUserNotFound
	}
	s.log.Warn("customer already bound, discarding new one",
		zap.String("user_id", u.ID), zap.String("discarded", ref))
	return fresh.CustomerRef(), nil
}

func withSessionPlaceholder(base string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id={CHECKOUT_SESSION_ID}"
}
