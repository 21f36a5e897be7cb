package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
	"github.com/noah-isme/sitecms-api/pkg/response"
)

// ActionRoute identifies one ?action= value under an HTTP method. An empty
// Action matches requests without the query parameter.
type ActionRoute struct {
	Method string
	Action string
}

// RequireInquiryManager guards a multiplexed endpoint: routes listed in public
// pass through, every other action needs claims whose role can manage inquiries.
func RequireInquiryManager(public ...ActionRoute) gin.HandlerFunc {
	open := make(map[ActionRoute]struct{}, len(public))
	for _, route := range public {
		open[ActionRoute{Method: strings.ToUpper(route.Method), Action: route.Action}] = struct{}{}
	}
	return func(c *gin.Context) {
		route := ActionRoute{Method: c.Request.Method, Action: strings.TrimSpace(c.Query("action"))}
		if route.Method == http.MethodHead {
			route.Method = http.MethodGet
		}
		if _, ok := open[route]; ok {
			c.Next()
			return
		}

		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.Role.CanManageInquiries() {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
