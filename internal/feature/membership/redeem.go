package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"terralumen/internal/core/payment"
	"terralumen/internal/domain"
)

type RedeemOutcome string

const (
	RedeemActivated      RedeemOutcome = "activated"
	RedeemAlreadyApplied RedeemOutcome = "already_applied"
	RedeemProcessing     RedeemOutcome = "processing"
)

// Redeem 用户从收银台跳回时同步确认付款。
// 返回错误时不会有任何写入。
func (s *Service) Redeem(ctx context.Context, userID, sessionID string) (out RedeemOutcome, err error) {
	defer func() {
		label := string(out)
		if err != nil {
			label = "error"
		}
		redemptionsTotal.WithLabelValues(label).Inc()
	}()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrMissingSession
	}
	u, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}

	sess, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		s.log.Warn("retrieve checkout session failed", zap.String("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrProvider, err)
	}

	// 防止拿别人的 session_id 来兑换
	if sess.CustomerRef == "" || sess.CustomerRef != u.CustomerRef() {
		s.log.Warn("checkout session customer mismatch",
			zap.String("user_id", userID), zap.String("session_id", sessionID))
		return "", ErrNotOwner
	}
	if owner := sess.Metadata["user_id"]; owner != "" && owner != userID {
		return "", ErrNotOwner
	}

	if !sess.Paid {
		return RedeemProcessing, nil
	}

	tier, err := domain.ParseMembershipType(sess.Metadata["membership_type"])
	if err != nil {
		s.log.Error("checkout session carries unknown membership type",
			zap.String("session_id", sessionID), zap.Error(err))
		return "", err
	}

	applied := false
	err = s.store.WithinTx(ctx, func(tx domain.UnitOfWork) error {
		locked, err := tx.Users().LockByID(ctx, userID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrUserNotFound
		}
		applied, err = s.applyPurchase(ctx, tx, locked, purchase{
			session: sess,
			tier:    tier,
			source:  domain.SourceCheckoutRedirect,
			at:      redeemedAt(sess, locked, s.now),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if !applied {
		return RedeemAlreadyApplied, nil
	}
	return RedeemActivated, nil
}

// redeemedAt 用 Stripe 的时间，和 webhook 的 event.created 同一个时钟；
// 早于已记录的状态时间时取后者，用户刚付完款不能被判成过期事件
func redeemedAt(sess *payment.Session, u *domain.User, now func() time.Time) time.Time {
	at := sess.Created
	if at.IsZero() {
		at = now()
	}
	at = at.UTC()
	if u.StatusEventAt != nil && at.Before(*u.StatusEventAt) {
		at = *u.StatusEventAt
	}
	return at
}
