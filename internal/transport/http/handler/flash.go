package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	resp "terralumen/internal/transport/http/response"
)

// 一次性提示，跳转后由前端读取一次即清除
const flashCookie = "tl_flash"

const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashError   = "error"
)

type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func setFlash(c *gin.Context, level, msg string) {
	c.SetSameSite(http.SameSiteLaxMode)
	// gin 会对 cookie 值做 QueryEscape
	c.SetCookie(flashCookie, level+"|"+msg, 300, "/", "", false, true)
}

func popFlash(c *gin.Context) *Flash {
	raw, err := c.Cookie(flashCookie)
	if err != nil || raw == "" {
		return nil
	}
	c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	level, msg, ok := strings.Cut(raw, "|")
	if !ok {
		return nil
	}
	return &Flash{Level: level, Message: msg}
}

// redirectWithFlash GET 回跳用 302，表单 POST 用 303
func redirectWithFlash(c *gin.Context, status int, to, level, msg string) {
	setFlash(c, level, msg)
	c.Redirect(status, to)
}

// FlashHandler GET /api/v1/flash
type FlashHandler struct{}

func (FlashHandler) MountAPI(api *gin.RouterGroup) {
	api.GET("/flash", func(c *gin.Context) {
		f := popFlash(c)
		if f == nil {
			c.JSON(http.StatusOK, resp.OK(nil))
			return
		}
		c.JSON(http.StatusOK, resp.OK(f))
	})
}
