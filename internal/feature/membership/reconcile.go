package membership

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"terralumen/internal/core/payment"
	"terralumen/internal/domain"
)

type WebhookResult string

const (
	WebhookProcessed WebhookResult = "processed"
	WebhookDuplicate WebhookResult = "duplicate"
	WebhookIgnored   WebhookResult = "ignored"
)

// webhook_events.outcome
const (
	OutcomeReceived       = "received"
	OutcomeApplied        = "applied"
	OutcomeAlreadyApplied = "already_applied"
	OutcomeUserNotFound   = "user_not_found"
	OutcomeNotGoverned    = "not_subscription_governed"
	OutcomeStale          = "stale"
	OutcomeIllegal        = "illegal_transition"
	OutcomeRejected       = "rejected"
	OutcomeUnchanged      = "unchanged"
)

// HandleWebhook 验签 → 去重 → 分发。
// 验签/解析失败返回 payment.ErrInvalidSignature / ErrMalformedPayload，其他错误需要 Stripe 重投。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	ev, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		return "", err
	}
	log := s.log.With(zap.String("event_id", ev.ID), zap.String("type", ev.Type))

	if ev.Kind == payment.Unrecognized {
		log.Debug("webhook event ignored")
		webhookEventsTotal.WithLabelValues(ev.Kind.String(), OutcomeReceived).Inc()
		return WebhookIgnored, nil
	}

	result := WebhookProcessed
	outcome := ""
	err = s.store.WithinTx(ctx, func(tx domain.UnitOfWork) error {
		fresh, err := tx.WebhookEvents().Record(ctx, &domain.WebhookEvent{
			EventID: ev.ID,
			Type:    ev.Type,
			Payload: datatypes.JSON(payload),
			Outcome: OutcomeReceived,
		})
		if err != nil {
			return err
		}
		if !fresh {
			result = WebhookDuplicate
			return nil
		}
		outcome, err = s.dispatch(ctx, tx, ev, log)
		if err != nil {
			return err
		}
		return tx.WebhookEvents().SetOutcome(ctx, ev.ID, outcome)
	})
	if err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		return "", err
	}
	if result == WebhookDuplicate {
		log.Info("duplicate webhook event")
		outcome = "duplicate"
	}
	webhookEventsTotal.WithLabelValues(ev.Kind.String(), outcome).Inc()
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, tx domain.UnitOfWork, ev *payment.Event, log *zap.Logger) (string, error) {
	switch ev.Kind {
	case payment.CheckoutCompleted:
		return s.onCheckoutCompleted(ctx, tx, ev, log)
	case payment.SubscriptionUpdated:
		return s.onSubscriptionUpdated(ctx, tx, ev, log)
	case payment.SubscriptionDeleted:
		return s.onSubscriptionDeleted(ctx, tx, ev, log)
	case payment.InvoicePaymentFailed:
		return s.onInvoicePaymentFailed(ctx, tx, ev, log)
	default:
		return OutcomeUnchanged, nil
	}
}

func (s *Service) onCheckoutCompleted(ctx context.Context, tx domain.UnitOfWork, ev *payment.Event, log *zap.Logger) (string, error) {
	sess := ev.Session
	userID := sess.Metadata["user_id"]
	if userID == "" {
		log.Warn("checkout session without user_id metadata", zap.String("session_id", sess.ID))
		return OutcomeUserNotFound, nil
	}
	tier, err := domain.ParseMembershipType(sess.Metadata["membership_type"])
	if err != nil {
		log.Error("checkout session carries unknown membership type", zap.String("session_id", sess.ID), zap.Error(err))
		return OutcomeRejected, nil
	}
	if !sess.Paid {
		// 异步支付方式，等后续事件
		log.Info("checkout completed but not paid yet", zap.String("session_id", sess.ID))
		return OutcomeUnchanged, nil
	}

	u, err := tx.Users().LockByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		log.Warn("webhook user not found", zap.String("user_id", userID))
		return OutcomeUserNotFound, nil
	}
	if ref := u.CustomerRef(); ref != "" && sess.CustomerRef != "" && ref != sess.CustomerRef {
		log.Warn("checkout session customer does not match user",
			zap.String("user_id", userID), zap.String("session_id", sess.ID))
		return OutcomeRejected, nil
	}

	applied, err := s.applyPurchase(ctx, tx, u, purchase{
		session: sess,
		tier:    tier,
		source:  domain.SourceWebhook,
		at:      ev.Created,
	})
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeAlreadyApplied, nil
	}
	return OutcomeApplied, nil
}

func (s *Service) onSubscriptionUpdated(ctx context.Context, tx domain.UnitOfWork, ev *payment.Event, log *zap.Logger) (string, error) {
	sub := ev.Subscription
	var trigger Trigger
	switch sub.Status {
	case "active":
		trigger = PaymentSucceeded
	case "past_due", "unpaid":
		trigger = PaymentLapsed
	default:
		log.Debug("subscription status does not affect membership", zap.String("status", sub.Status))
		return OutcomeUnchanged, nil
	}
	return s.transitionByCustomer(ctx, tx, ev, sub.CustomerRef, sub.ID, trigger, false, log)
}

func (s *Service) onSubscriptionDeleted(ctx context.Context, tx domain.UnitOfWork, ev *payment.Event, log *zap.Logger) (string, error) {
	sub := ev.Subscription
	return s.transitionByCustomer(ctx, tx, ev, sub.CustomerRef, sub.ID, Cancelled, true, log)
}

func (s *Service) onInvoicePaymentFailed(ctx context.Context, tx domain.UnitOfWork, ev *payment.Event, log *zap.Logger) (string, error) {
	inv := ev.Invoice
	return s.transitionByCustomer(ctx, tx, ev, inv.CustomerRef, inv.SubscriptionRef, PaymentLapsed, false, log)
}

// transitionByCustomer 订阅类事件的公共路径：按 customer 锁用户，校验归属和时序后推进状态
func (s *Service) transitionByCustomer(
	ctx context.Context,
	tx domain.UnitOfWork,
	ev *payment.Event,
	customerRef, subscriptionRef string,
	trigger Trigger,
	clearSubscription bool,
	log *zap.Logger,
) (string, error) {
	u, err := tx.Users().LockByCustomerRef(ctx, customerRef)
	if err != nil {
		return "", err
	}
	if u == nil {
		log.Info("webhook user not found", zap.String("customer", customerRef))
		return OutcomeUserNotFound, nil
	}
	log = log.With(zap.String("user_id", u.ID))

	if !subscriptionGoverned(u, subscriptionRef) {
		log.Info("user access is not governed by this subscription", zap.String("subscription", subscriptionRef))
		return OutcomeNotGoverned, nil
	}
	if stale(u, ev.Created) {
		log.Info("stale webhook event skipped", zap.Time("event_at", ev.Created), zap.Timep("status_event_at", u.StatusEventAt))
		return OutcomeStale, nil
	}

	from := u.MembershipStatus
	to, err := Next(from, trigger)
	if err != nil {
		log.Warn("illegal membership transition ignored", zap.Error(err))
		return OutcomeIllegal, nil
	}

	u.MembershipStatus = to
	switch {
	case clearSubscription:
		u.StripeSubscriptionID = nil
	case u.StripeSubscriptionID == nil && subscriptionRef != "":
		u.StripeSubscriptionID = optional(subscriptionRef)
	}
	at := ev.Created
	u.StatusEventAt = &at
	if err := tx.Users().UpdateMembership(ctx, u); err != nil {
		return "", err
	}
	transitionsTotal.WithLabelValues(trigger.String(), string(from), string(to)).Inc()
	log.Info("membership transition", zap.String("trigger", trigger.String()),
		zap.String("from", string(from)), zap.String("to", string(to)))
	return OutcomeApplied, nil
}

// subscriptionGoverned 终身/赞助会员不受订阅事件影响；已记录的订阅号必须一致
func subscriptionGoverned(u *domain.User, subscriptionRef string) bool {
	if u.MembershipType == nil || !u.MembershipType.Recurring() {
		return false
	}
	if u.StripeSubscriptionID == nil || subscriptionRef == "" {
		return true
	}
	return *u.StripeSubscriptionID == subscriptionRef
}
