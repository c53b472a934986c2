package ez

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"unicode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	resp "terralumen/internal/transport/http/response"
)

type CrudHooks[T any] struct {
	ScopeList func(c *gin.Context, q *gorm.DB) *gorm.DB // 自定义筛选
	AfterGet  func(c *gin.Context, m *T)
}

// CrudConfig 只读 + 按归属过滤；写操作一律走业务 service
type CrudConfig[T any] struct {
	DB    *gorm.DB
	Group *gin.RouterGroup // 已鉴权分组（能拿 userId）
	Path  string
	New   func() *T
	Log   *zap.Logger

	Hooks CrudHooks[T]

	AllowList bool
	AllowGet  bool

	IDField    string // 默认 "ID"
	OwnerField string // 默认优先 "OwnerID"，其次 "UserID"/"UID"

	// 列名按模型字段自动转 snake_case，为空则按 ID DESC
	OrderBy string // 例如 "created_at DESC"
}

func (c *CrudConfig[T]) idFieldCandidates() []string {
	if c.IDField != "" {
		return []string{c.IDField, "ID", "Id"}
	}
	return []string{"ID", "Id"}
}

func (c *CrudConfig[T]) ownerFieldCandidates() []string {
	if c.OwnerField != "" {
		return []string{c.OwnerField, "OwnerID", "UserID", "UID"}
	}
	return []string{"OwnerID", "UserID", "UID"}
}

func getStringFieldPtr(obj any, candidates []string) (*string, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr {
		return nil, false
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	t := v.Type()
	for _, cand := range candidates {
		f, ok := t.FieldByName(cand)
		if !ok || f.PkgPath != "" {
			continue
		}
		fv := v.FieldByIndex(f.Index)
		if fv.Kind() == reflect.String && fv.CanSet() {
			return fv.Addr().Interface().(*string), true
		}
	}
	return nil, false
}

func writeStringField(obj any, candidates []string, val string) bool {
	p, ok := getStringFieldPtr(obj, candidates)
	if !ok {
		return false
	}
	*p = val
	return true
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

func toSnake(s string) string {
	var b []rune
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			// ID / URL 这类连续大写不拆
			if i > 0 && !unicode.IsUpper(rs[i-1]) {
				b = append(b, '_')
			}
			b = append(b, unicode.ToLower(r))
		} else {
			b = append(b, r)
		}
	}
	return string(b)
}

// Crud 注册 List/Get（模型无需实现任何接口），owner 字段强制等于当前 userId
func Crud[T any](cfg CrudConfig[T]) {
	if !cfg.AllowGet && !cfg.AllowList {
		cfg.AllowGet, cfg.AllowList = true, true
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	idFieldNames := cfg.idFieldCandidates()
	ownerFieldNames := cfg.ownerFieldCandidates()

	if cfg.AllowList {
		cfg.Group.GET(cfg.Path, func(c *gin.Context) {
			uid := c.GetString(CtxUserID)
			if uid == "" {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			page := atoiDefault(c.Query("page"), 1)
			size := atoiDefault(c.Query("size"), 20)
			if size > 100 {
				size = 20
			}
			offset := (page - 1) * size

			// 用结构体 Where 自动映射列名，避免手写 user_id
			ownerFilter := cfg.New()
			if !writeStringField(ownerFilter, ownerFieldNames, uid) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, "owner field not found"))
				return
			}
			q := cfg.DB.WithContext(c.Request.Context()).Model(cfg.New()).Where(ownerFilter)
			if cfg.Hooks.ScopeList != nil {
				q = cfg.Hooks.ScopeList(c, q)
			}

			var total int64
			if err := q.Count(&total).Error; err != nil {
				cfg.Log.Error("crud count failed", zap.String("path", cfg.Path), zap.Error(err))
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
				return
			}
			if cfg.OrderBy != "" {
				q = q.Order(cfg.OrderBy)
			} else {
				q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: toSnake(idFieldNames[0])}, Desc: true})
			}
			var items []T
			if err := q.Limit(size).Offset(offset).Find(&items).Error; err != nil {
				cfg.Log.Error("crud list failed", zap.String("path", cfg.Path), zap.Error(err))
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
				return
			}
			if cfg.Hooks.AfterGet != nil {
				for i := range items {
					cfg.Hooks.AfterGet(c, &items[i])
				}
			}
			c.JSON(http.StatusOK, resp.OK(gin.H{
				"list": items, "total": total, "page": page, "size": size,
			}))
		})
	}

	if cfg.AllowGet {
		cfg.Group.GET(cfg.Path+"/:id", func(c *gin.Context) {
			uid := c.GetString(CtxUserID)
			if uid == "" {
				c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
				return
			}
			filter := cfg.New()
			_ = writeStringField(filter, idFieldNames, c.Param("id"))
			_ = writeStringField(filter, ownerFieldNames, uid)

			m := cfg.New()
			err := cfg.DB.WithContext(c.Request.Context()).Where(filter).First(m).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusOK, resp.Error(resp.CodeNotFound, "not found"))
				return
			}
			if err != nil {
				cfg.Log.Error("crud get failed", zap.String("path", cfg.Path), zap.Error(err))
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, ""))
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			c.JSON(http.StatusOK, resp.OK(m))
		})
	}
}
