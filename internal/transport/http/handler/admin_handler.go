package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"terralumen/internal/core/auth"
	"terralumen/internal/core/cache"
	"terralumen/internal/domain"
	httpez "terralumen/internal/transport/http/ez"
	resp "terralumen/internal/transport/http/response"
)

const statsCacheKey = "admin:stats"

type AdminHandler struct {
	store    domain.Store
	cache    *cache.Cache
	statsTTL time.Duration
	log      *zap.Logger
}

func NewAdminHandler(store domain.Store, c *cache.Cache, statsTTL time.Duration, l *zap.Logger) *AdminHandler {
	if l == nil {
		l = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}
	return &AdminHandler{store: store, cache: c, statsTTL: statsTTL, log: l.Named("admin")}
}

type Stats struct {
	TotalMembers  int64                             `json:"totalMembers"`
	ActiveMembers int64                             `json:"activeMembers"`
	ByStatus      map[domain.MembershipStatus]int64 `json:"byStatus"`
	GeneratedAt   time.Time                         `json:"generatedAt"`
}

type usersQ struct {
	Status string `form:"status"`
	Q      string `form:"q"`
	Offset int    `form:"offset,default=0"`
	Limit  int    `form:"limit,default=20"`
}

type pageQ struct {
	Offset int `form:"offset,default=0"`
	Limit  int `form:"limit,default=20"`
}

func (h *AdminHandler) MountAdmin(admin *gin.RouterGroup) {
	e := httpez.New(admin, h.log)
	roles := []string{auth.RoleAdmin}

	httpez.RegisterAction(e, httpez.Action[struct{}, *Stats]{
		Method: http.MethodGet,
		Path:   "/stats",
		Binder: httpez.BindNone,
		Auth:   true,
		Roles:  roles,
		Handler: func(c *gin.Context, _ *struct{}) (*Stats, error) {
			st, err := cache.GetOrLoadJSON(h.cache, c.Request.Context(), statsCacheKey, h.statsTTL, h.loadStats)
			if err != nil {
				return nil, httpez.Internal("load stats failed", err)
			}
			return st, nil
		},
	})

	httpez.RegisterAction(e, httpez.Action[usersQ, resp.Page[domain.User]]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: httpez.BindQuery,
		Auth:   true,
		Roles:  roles,
		Handler: func(c *gin.Context, in *usersQ) (resp.Page[domain.User], error) {
			f := domain.UserFilter{Query: strings.TrimSpace(in.Q), Offset: in.Offset, Limit: in.Limit}
			if in.Status != "" {
				st, err := domain.ParseMembershipStatus(in.Status)
				if err != nil {
					return resp.Page[domain.User]{}, httpez.BadRequest(err.Error())
				}
				f.Status = st
			}
			users, total, err := h.store.Users().List(c.Request.Context(), f)
			if err != nil {
				return resp.Page[domain.User]{}, httpez.Internal("list users failed", err)
			}
			return resp.Page[domain.User]{Total: total, Items: users}, nil
		},
	})

	httpez.RegisterAction(e, httpez.Action[pageQ, resp.Page[domain.MembershipTransaction]]{
		Method: http.MethodGet,
		Path:   "/users/:id/transactions",
		Binder: httpez.BindQuery,
		Auth:   true,
		Roles:  roles,
		Handler: func(c *gin.Context, in *pageQ) (resp.Page[domain.MembershipTransaction], error) {
			var page resp.Page[domain.MembershipTransaction]
			u, err := h.store.Users().FindByID(c.Request.Context(), c.Param("id"))
			if err != nil {
				return page, httpez.Internal("load user failed", err)
			}
			if u == nil {
				return page, httpez.NotFound("user not found")
			}
			if in.Limit <= 0 || in.Limit > 100 {
				in.Limit = 20
			}
			items, total, err := h.store.Transactions().ListByUser(c.Request.Context(), u.ID, in.Offset, in.Limit)
			if err != nil {
				return page, httpez.Internal("list transactions failed", err)
			}
			return resp.Page[domain.MembershipTransaction]{Total: total, Items: items}, nil
		},
	})

	// 流水只允许 completed → refunded，会员状态由 Stripe 事件驱动，这里不动
	httpez.RegisterAction(e, httpez.Action[struct{}, *domain.MembershipTransaction]{
		Method: http.MethodPost,
		Path:   "/transactions/:id/refund",
		Binder: httpez.BindNone,
		Auth:   true,
		Roles:  roles,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.MembershipTransaction, error) {
			ctx := c.Request.Context()
			id := c.Param("id")
			err := h.store.Transactions().MarkRefunded(ctx, id)
			if errors.Is(err, domain.ErrTransactionNotRefundable) {
				return nil, httpez.Conflict("transaction is not refundable")
			}
			if err != nil {
				return nil, httpez.Internal("refund failed", err)
			}
			t, err := h.store.Transactions().FindByID(ctx, id)
			if err != nil {
				return nil, httpez.Internal("load transaction failed", err)
			}
			h.log.Info("transaction marked refunded",
				zap.String("transaction_id", id), zap.String("admin_id", c.GetString(httpez.CtxUserID)))
			return t, nil
		},
	})
}

func (h *AdminHandler) loadStats(ctx context.Context) (*Stats, error) {
	counts, err := h.store.Users().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{ByStatus: counts, GeneratedAt: time.Now().UTC()}
	for _, n := range counts {
		st.TotalMembers += n
	}
	st.ActiveMembers = counts[domain.StatusActive]
	return st, nil
}
