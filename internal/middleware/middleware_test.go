package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sitecms-api/internal/models"
	"github.com/noah-isme/sitecms-api/internal/service"
)

type staticValidator map[string]*models.JWTClaims

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func guardedRouter() *gin.Engine {
	validator := staticValidator{
		"admin":  {UserID: "u-1", Role: models.RoleAdmin},
		"editor": {UserID: "u-2", Role: models.RoleEditor},
	}
	router := gin.New()
	router.Use(OptionalJWT(validator), RequireInquiryManager(
		ActionRoute{Method: http.MethodPost, Action: ""},
		ActionRoute{Method: http.MethodGet, Action: "attachment"},
	))
	handler := func(c *gin.Context) {
		if claims := ClaimsFromContext(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	}
	router.GET("/contact", handler)
	router.POST("/contact", handler)
	return router
}

func serve(router http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireInquiryManager(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := guardedRouter()

	cases := []struct {
		name   string
		method string
		target string
		token  string
		status int
		body   string
	}{
		{"public submit", http.MethodPost, "/contact", "", http.StatusOK, "anonymous"},
		{"public download", http.MethodGet, "/contact?action=attachment", "", http.StatusOK, "anonymous"},
		{"list without token", http.MethodGet, "/contact?action=list", "", http.StatusUnauthorized, ""},
		{"list with bad token", http.MethodGet, "/contact?action=list", "forged", http.StatusUnauthorized, ""},
		{"list as editor", http.MethodGet, "/contact?action=list", "editor", http.StatusForbidden, ""},
		{"list as admin", http.MethodGet, "/contact?action=list", "admin", http.StatusOK, "u-1"},
		{"archive without token", http.MethodPost, "/contact?action=archive", "", http.StatusUnauthorized, ""},
		{"submit carries claims", http.MethodPost, "/contact", "admin", http.StatusOK, "u-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(router, tc.method, tc.target, tc.token)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestBearerTokenParsing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for header, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			c.Request.Header.Set("Authorization", header)
		}
		got, ok := bearerToken(c)
		assert.Equal(t, want != "", ok, header)
		assert.Equal(t, want, got, header)
	}
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BodyLimit(8))
	var readErr error
	router.POST("/", func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	router.ServeHTTP(httptest.NewRecorder(), req)

	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, readErr, &tooLarge)
	assert.Equal(t, int64(8), tooLarge.Limit)
}

func TestMetricsBoundsActionLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics, "list"))
	router.GET("/contact", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/contact?action=list", "")
	serve(router, http.MethodGet, "/contact?action=x1", "")
	serve(router, http.MethodGet, "/contact?action=x2", "")
	serve(router, http.MethodGet, "/missing", "")

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			counts[labels["path"]+"|"+labels["action"]] += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{
		"/contact|list":  1,
		"/contact|other": 2,
		"unmatched|":     1,
	}, counts)
}
