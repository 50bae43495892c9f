package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/web/internal/flash"
	"studio/web/internal/models"
	"studio/web/internal/security"
	"studio/web/internal/service"
	"studio/web/internal/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubResolver struct {
	snapshot    map[string]models.Identity
	revalidated map[string]models.Identity
	err         error
	calls       []service.ResolveMode
}

func (s *stubResolver) Resolve(_ context.Context, token string, mode service.ResolveMode) (models.Identity, error) {
	s.calls = append(s.calls, mode)
	if s.err != nil {
		return models.Identity{}, s.err
	}
	src := s.snapshot
	if mode == service.ResolveRevalidated {
		src = s.revalidated
	}
	identity, ok := src[token]
	if !ok {
		return models.Identity{}, service.ErrUnauthenticated
	}
	return identity, nil
}

var testCookie = SessionCookie{Name: "sid", MaxAge: time.Hour}

func newEngine(resolver IdentityResolver) *gin.Engine {
	log := zerolog.Nop()
	r := gin.New()
	r.SetHTMLTemplate(web.MustTemplates())
	r.Use(RequestID(), Logger(log), Recovery(log), flash.NewManager("secret", false).Middleware(), LoadIdentity(resolver, testCookie, log))

	who := func(c *gin.Context) {
		if id := CurrentIdentity(c); id != nil {
			c.String(http.StatusOK, "%s:%s", id.Name, id.Role)
			return
		}
		c.String(http.StatusOK, "anonymous")
	}
	r.GET("/", who)
	r.GET("/account", RequireUser(resolver, testCookie, log), who)
	admin := r.Group("/admin", RequireUser(resolver, testCookie, log), RequireRole(models.UserRoleAdmin, log))
	admin.GET("/dashboard", who)
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: token})
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			found = ck
		}
	}
	return found
}

func joResolver() *stubResolver {
	jo := models.Identity{UserID: "u1", Name: "Jo", Email: "jo@x.com", Role: models.UserRoleUser}
	return &stubResolver{
		snapshot:    map[string]models.Identity{"tok": jo},
		revalidated: map[string]models.Identity{"tok": jo},
	}
}

func TestLoadIdentity(t *testing.T) {
	r := newEngine(joResolver())

	assert.Equal(t, "anonymous", get(r, "/", "").Body.String())
	assert.Equal(t, "Jo:user", get(r, "/", "tok").Body.String())

	rec := get(r, "/", "stale")
	assert.Equal(t, "anonymous", rec.Body.String())
	require.NotNil(t, cookieNamed(rec, "sid"))
	assert.Equal(t, -1, cookieNamed(rec, "sid").MaxAge)
}

func TestLoadIdentityStoreFailureContinuesAnonymously(t *testing.T) {
	r := newEngine(&stubResolver{err: fmt.Errorf("%w: redis down", service.ErrStoreUnavailable)})

	rec := get(r, "/", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
	assert.Nil(t, cookieNamed(rec, "sid"))
}

func TestRequireUserRedirectsToLogin(t *testing.T) {
	r := newEngine(joResolver())

	for _, token := range []string{"", "stale"} {
		rec := get(r, "/account", token)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, LoginPath, rec.Header().Get("Location"))
		assert.NotNil(t, cookieNamed(rec, flash.CookieName))
	}
}

func TestRequireUserUsesRevalidatedIdentity(t *testing.T) {
	res := joResolver()
	res.revalidated["tok"] = models.Identity{UserID: "u1", Name: "Jo", Role: models.UserRoleAdmin}
	r := newEngine(res)

	assert.Equal(t, "Jo:user", get(r, "/", "tok").Body.String())
	assert.Equal(t, "Jo:admin", get(r, "/account", "tok").Body.String())
	assert.Equal(t, "Jo:admin", get(r, "/admin/dashboard", "tok").Body.String())
}

func TestRequireUserStoreFailureRendersErrorPage(t *testing.T) {
	r := newEngine(&stubResolver{err: fmt.Errorf("%w: redis down", service.ErrStoreUnavailable)})

	rec := get(r, "/account", "tok")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotContains(t, rec.Body.String(), "redis")
}

func TestRequireRoleForbidden(t *testing.T) {
	r := newEngine(joResolver())

	rec := get(r, "/admin/dashboard", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.NotNil(t, cookieNamed(rec, flash.CookieName))
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	log := zerolog.Nop()
	r := gin.New()
	r.Use(flash.NewManager("secret", false).Middleware())
	r.GET("/admin", RequireRole(models.UserRoleAdmin, log), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(r, "/admin", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
}

func TestRecoveryRendersErrorPage(t *testing.T) {
	r := newEngine(joResolver())

	rec := get(r, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Something went wrong")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestSessionCookieAttributes(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	sc := SessionCookie{Name: "sid", MaxAge: 2 * time.Hour, Secure: true}

	sc.Set(c, "abc")

	ck := cookieNamed(rec, "sid")
	require.NotNil(t, ck)
	assert.Equal(t, "abc", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.Equal(t, 7200, ck.MaxAge)
}

func TestGuardPrefixDeniesUnknownAdminPaths(t *testing.T) {
	log := zerolog.Nop()
	res := joResolver()
	r := newEngine(res)
	r.NoRoute(GuardPrefix("/admin", models.UserRoleAdmin, res, testCookie, log), func(c *gin.Context) {
		c.String(http.StatusNotFound, "missing")
	})

	rec := get(r, "/admin/does-not-exist", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = get(r, "/admin/does-not-exist", "")
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))

	rec = get(r, "/administrator", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	res.revalidated["tok"] = models.Identity{UserID: "u1", Name: "Jo", Role: models.UserRoleAdmin}
	rec = get(r, "/admin/does-not-exist", "tok")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCSRF(t *testing.T) {
	log := zerolog.Nop()
	r := gin.New()
	r.SetHTMLTemplate(web.MustTemplates())
	r.Use(LoadIdentity(joResolver(), testCookie, log), CSRF("csrf-secret", testCookie, log, LoginPath))
	r.GET("/form", func(c *gin.Context) { c.String(http.StatusOK, CSRFToken(c)) })
	r.POST("/submit", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST(LoginPath, func(c *gin.Context) { c.Status(http.StatusNoContent) })

	postTo := func(path, token, field, header string) int {
		form := url.Values{}
		if field != "" {
			form.Set(CSRFField, field)
		}
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			req.Header.Set(CSRFHeader, header)
		}
		if token != "" {
			req.AddCookie(&http.Cookie{Name: "sid", Value: token})
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	post := func(token, field, header string) int {
		return postTo("/submit", token, field, header)
	}

	issued := get(r, "/form", "tok").Body.String()
	assert.Equal(t, security.CSRFToken("csrf-secret", "tok"), issued)
	assert.Empty(t, get(r, "/form", "").Body.String())

	assert.Equal(t, http.StatusNoContent, post("", "", ""), "anonymous posts need no token")
	assert.Equal(t, http.StatusNoContent, post("stale", "", ""), "unknown sessions need no token")
	assert.Equal(t, http.StatusForbidden, post("tok", "", ""))
	assert.Equal(t, http.StatusForbidden, post("tok", "forged", ""))
	assert.Equal(t, http.StatusNoContent, post("tok", issued, ""))
	assert.Equal(t, http.StatusNoContent, post("tok", "", issued))
	assert.Equal(t, http.StatusNoContent, postTo(LoginPath, "tok", "", ""), "login form is exempt")
}
