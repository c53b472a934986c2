package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	resp "terralumen/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

func do(r http.Handler, method, target string, body io.Reader, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for _, f := range setup {
		f(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func withJSON(req *http.Request) { req.Header.Set("Content-Type", "application/json") }

func withForm(req *http.Request) { req.Header.Set("Content-Type", "application/x-www-form-urlencoded") }

func withBearer(tok string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tok) }
}

func envelope(t *testing.T, w *httptest.ResponseRecorder, data any) resp.Resp {
	t.Helper()
	var raw struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return resp.Resp{Code: raw.Code, Msg: raw.Msg}
}

// flashOf 从 Set-Cookie 里取出一次性提示
func flashOf(t *testing.T, w *httptest.ResponseRecorder) Flash {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name != flashCookie || ck.MaxAge < 0 {
			continue
		}
		v, err := url.QueryUnescape(ck.Value)
		require.NoError(t, err)
		level, msg, _ := strings.Cut(v, "|")
		return Flash{Level: level, Message: msg}
	}
	t.Fatalf("no flash cookie in %v", w.Header().Values("Set-Cookie"))
	return Flash{}
}
