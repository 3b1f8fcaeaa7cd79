package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinAuthenticate adapts AuthMiddleware.Authenticate to Gin.
func GinAuthenticate(auth *AuthMiddleware) gin.HandlerFunc {
	return ginBridge(auth.Authenticate)
}

// GinRequireAuth adapts AuthMiddleware.RequireAuth to Gin. It must run
// after GinAuthenticate.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return ginBridge(auth.RequireAuth)
}

// GinRequireAdmin adapts AuthMiddleware.RequireAdmin to Gin. It must run
// after GinAuthenticate.
func GinRequireAdmin(auth *AuthMiddleware) gin.HandlerFunc {
	return ginBridge(auth.RequireAdmin)
}

func ginBridge(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// If the middleware already handled the response, stop Gin chain
		if c.Writer.Written() {
			c.Abort()
			return
		}
	}
}
