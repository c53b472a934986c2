package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terralumen/internal/core/auth"
	"terralumen/internal/core/cache"
	"terralumen/internal/domain"
	"terralumen/internal/repo"
	httpez "terralumen/internal/transport/http/ez"
	resp "terralumen/internal/transport/http/response"
	"terralumen/internal/testutil"
)

func adminEngine(store *repo.Store, c *cache.Cache, role string) *gin.Engine {
	r := gin.New()
	admin := r.Group("/admin/v1", func(c *gin.Context) {
		c.Set(httpez.CtxUserID, "admin-1")
		c.Set(httpez.CtxRole, role)
		c.Next()
	})
	NewAdminHandler(store, c, time.Minute, nil).MountAdmin(admin)
	return r
}

func TestAdminStatsCached(t *testing.T) {
	store := testutil.NewStore(t)
	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	r := adminEngine(store, c, auth.RoleAdmin)

	testutil.SeedUser(t, store, "a@example.com", testutil.WithMembership(domain.MembershipAnnual, domain.StatusActive))
	testutil.SeedUser(t, store, "b@example.com")

	var st Stats
	w := do(r, http.MethodGet, "/admin/v1/stats", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &st).Code)
	assert.Equal(t, int64(2), st.TotalMembers)
	assert.Equal(t, int64(1), st.ActiveMembers)
	assert.Equal(t, int64(1), st.ByStatus[domain.StatusPending])
	assert.True(t, mr.Exists(statsCacheKey))

	// TTL 内读缓存
	testutil.SeedUser(t, store, "c@example.com", testutil.WithMembership(domain.MembershipLifetime, domain.StatusActive))
	w = do(r, http.MethodGet, "/admin/v1/stats", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &st).Code)
	assert.Equal(t, int64(1), st.ActiveMembers)

	mr.FastForward(2 * time.Minute)
	w = do(r, http.MethodGet, "/admin/v1/stats", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &st).Code)
	assert.Equal(t, int64(2), st.ActiveMembers)
}

func TestAdminStatsWithoutRedis(t *testing.T) {
	store := testutil.NewStore(t)
	r := adminEngine(store, nil, auth.RoleAdmin)
	testutil.SeedUser(t, store, "a@example.com")

	var st Stats
	w := do(r, http.MethodGet, "/admin/v1/stats", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &st).Code)
	assert.Equal(t, int64(1), st.TotalMembers)
}

func TestAdminRequiresAdminRole(t *testing.T) {
	r := adminEngine(testutil.NewStore(t), nil, auth.RoleMember)
	w := do(r, http.MethodGet, "/admin/v1/users", nil)
	assert.Equal(t, resp.CodeForbidden, envelope(t, w, nil).Code)
}

func TestAdminListUsers(t *testing.T) {
	store := testutil.NewStore(t)
	r := adminEngine(store, nil, auth.RoleAdmin)
	testutil.SeedUser(t, store, "alice@example.com", testutil.WithMembership(domain.MembershipAnnual, domain.StatusActive))
	testutil.SeedUser(t, store, "bob@example.com", testutil.WithMembership(domain.MembershipAnnual, domain.StatusExpired))
	testutil.SeedUser(t, store, "carol@example.com")

	var page resp.Page[domain.User]
	w := do(r, http.MethodGet, "/admin/v1/users?status=expired", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &page).Code)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "bob@example.com", page.Items[0].Email)

	w = do(r, http.MethodGet, "/admin/v1/users?q=carol", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &page).Code)
	assert.Equal(t, int64(1), page.Total)

	w = do(r, http.MethodGet, "/admin/v1/users?status=gold", nil)
	assert.Equal(t, resp.CodeBadRequest, envelope(t, w, nil).Code)
}

func TestAdminUserTransactionsAndRefund(t *testing.T) {
	store := testutil.NewStore(t)
	r := adminEngine(store, nil, auth.RoleAdmin)
	u := testutil.SeedUser(t, store, "a@example.com")

	e := &domain.MembershipTransaction{
		UserID:         u.ID,
		Reference:      "pi_1",
		Amount:         decimal.New(9900, -2),
		Currency:       "USD",
		Status:         domain.PaymentCompleted,
		MembershipType: domain.MembershipLifetime,
		Source:         domain.SourceCheckoutRedirect,
		EventAt:        time.Now().UTC(),
	}
	_, err := store.Transactions().Append(context.Background(), e)
	require.NoError(t, err)

	var page resp.Page[domain.MembershipTransaction]
	w := do(r, http.MethodGet, "/admin/v1/users/"+u.ID+"/transactions", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &page).Code)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "pi_1", page.Items[0].Reference)

	w = do(r, http.MethodGet, "/admin/v1/users/missing/transactions", nil)
	assert.Equal(t, resp.CodeNotFound, envelope(t, w, nil).Code)

	var refunded domain.MembershipTransaction
	w = do(r, http.MethodPost, "/admin/v1/transactions/"+e.ID+"/refund", nil)
	require.Equal(t, resp.CodeOK, envelope(t, w, &refunded).Code)
	assert.Equal(t, domain.PaymentRefunded, refunded.Status)

	w = do(r, http.MethodPost, "/admin/v1/transactions/"+e.ID+"/refund", nil)
	assert.Equal(t, resp.CodeConflict, envelope(t, w, nil).Code)
}
