package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"terralumen/internal/core/auth"
	"terralumen/internal/domain"
	"terralumen/internal/repo"
	httpez "terralumen/internal/transport/http/ez"
	mdw "terralumen/internal/transport/http/middleware"
	"terralumen/pkg/utils"
)

type CookieConfig struct {
	Name   string
	Secure bool
}

type AccountHandler struct {
	store  domain.Store
	db     *gorm.DB
	jwt    *auth.JWTer
	cookie CookieConfig
	log    *zap.Logger
	// 登录/注册按 IP 限流，可为空
	limit gin.HandlerFunc
}

type AccountOptions struct {
	Store  domain.Store
	DB     *gorm.DB
	JWT    *auth.JWTer
	Cookie CookieConfig
	Logger *zap.Logger
	Limit  gin.HandlerFunc
}

func NewAccountHandler(o AccountOptions) *AccountHandler {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &AccountHandler{store: o.Store, db: o.DB, jwt: o.JWT, cookie: o.Cookie, log: o.Logger.Named("account"), limit: o.Limit}
}

func (h *AccountHandler) Priority() int { return 10 }

type registerIn struct {
	Name            string `json:"name"             form:"name"             binding:"required,max=100"`
	Email           string `json:"email"            form:"email"            binding:"required,email"`
	Password        string `json:"password"         form:"password"         binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" binding:"required,eqfield=Password"`
}

type loginIn struct {
	Email    string `json:"email"    form:"email"    binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

type loginOut struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type cardOut struct {
	MemberID       string                  `json:"memberId"`
	Name           string                  `json:"name"`
	Email          string                  `json:"email"`
	MembershipType *domain.MembershipType  `json:"membershipType"`
	Status         domain.MembershipStatus `json:"status"`
	MemberSince    time.Time               `json:"memberSince"`
}

func (h *AccountHandler) MountAPI(api *gin.RouterGroup) {
	public := api.Group("/auth")
	if h.limit != nil {
		public.Use(h.limit)
	}
	ezPublic := httpez.New(public, h.log)

	httpez.RegisterAction(ezPublic, httpez.Action[registerIn, *domain.User]{
		Method:  http.MethodPost,
		Path:    "/register",
		Binder:  httpez.BindForm,
		Handler: h.register,
	})
	httpez.RegisterAction(ezPublic, httpez.Action[loginIn, loginOut]{
		Method:  http.MethodPost,
		Path:    "/login",
		Binder:  httpez.BindForm,
		Handler: h.login,
	})
	httpez.RegisterAction(ezPublic, httpez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/logout",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			h.writeAuthCookie(c, "", -1)
			return gin.H{"loggedOut": true}, nil
		},
	})

	authed := api.Group("", mdw.AuthJWT(h.jwt, h.cookie.Name, ""))
	ezAuth := httpez.New(authed, h.log)

	httpez.RegisterAction(ezAuth, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: httpez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			u, err := h.store.Users().FindByID(c.Request.Context(), c.GetString(httpez.CtxUserID))
			if err != nil {
				return nil, httpez.Internal("load user failed", err)
			}
			if u == nil {
				return nil, httpez.NotFound("user not found")
			}
			return u, nil
		},
	})

	httpez.Crud(httpez.CrudConfig[domain.MembershipTransaction]{
		DB:         h.db,
		Group:      authed,
		Path:       "/me/transactions",
		New:        func() *domain.MembershipTransaction { return &domain.MembershipTransaction{} },
		Log:        h.log,
		OwnerField: "UserID",
		OrderBy:    "created_at DESC",
		Hooks: httpez.CrudHooks[domain.MembershipTransaction]{
			ScopeList: func(c *gin.Context, q *gorm.DB) *gorm.DB {
				if st := strings.TrimSpace(c.Query("status")); st != "" {
					q = q.Where("status = ?", strings.ToLower(st))
				}
				return q
			},
		},
	})

	member := authed.Group("/member", mdw.RequireActiveMember(h.store.Users(), h.log))
	httpez.RegisterAction(httpez.New(member, h.log), httpez.Action[struct{}, cardOut]{
		Method: http.MethodGet,
		Path:   "/card",
		Binder: httpez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (cardOut, error) {
			u := c.MustGet(mdw.KeyMember).(*domain.User)
			since := u.CreatedAt
			if u.StatusEventAt != nil {
				since = *u.StatusEventAt
			}
			return cardOut{
				MemberID:       memberNumber(u.ID),
				Name:           u.Name,
				Email:          u.Email,
				MembershipType: u.MembershipType,
				Status:         u.MembershipStatus,
				MemberSince:    since,
			}, nil
		},
	})
}

func (h *AccountHandler) register(c *gin.Context, in *registerIn) (*domain.User, error) {
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, httpez.BadRequest(err.Error())
	}
	u := &domain.User{
		ID:               utils.NewID(),
		Email:            strings.ToLower(strings.TrimSpace(in.Email)),
		Name:             strings.TrimSpace(in.Name),
		PasswordHash:     hash,
		MembershipStatus: domain.StatusPending,
	}
	if err := h.store.Users().Create(c.Request.Context(), u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, httpez.BadRequest("email already registered")
		}
		return nil, httpez.Internal("register failed", err)
	}
	h.log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

func (h *AccountHandler) login(c *gin.Context, in *loginIn) (loginOut, error) {
	u, err := h.store.Users().FindByEmail(c.Request.Context(), in.Email)
	if err != nil {
		return loginOut{}, httpez.Internal("login failed", err)
	}
	if u == nil || !utils.CheckPassword(in.Password, u.PasswordHash) {
		return loginOut{}, httpez.Unauthorized("invalid credentials")
	}
	tok, err := h.jwt.Issue(u.ID, auth.RoleFor(u.IsAdmin))
	if err != nil {
		return loginOut{}, httpez.Internal("issue token failed", err)
	}
	h.writeAuthCookie(c, tok, int(h.jwt.TTL.Seconds()))
	return loginOut{Token: tok, User: u}, nil
}

// writeAuthCookie Stripe 回跳是浏览器导航，只能带 cookie
func (h *AccountHandler) writeAuthCookie(c *gin.Context, tok string, maxAge int) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, tok, maxAge, "/", "", h.cookie.Secure, true)
}

func memberNumber(id string) string {
	if len(id) > 12 {
		id = id[:12]
	}
	return "TL-" + strings.ToUpper(id)
}
