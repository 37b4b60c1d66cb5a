package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DashboardRoutes wires the staff overview under /api/dashboard.
func (a *API) DashboardRoutes(r *gin.RouterGroup) {
	r.GET("", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		// The reporting service only reads, authorization happens here.
		if err := a.registry.Authorize(principal, "dashboard", "view"); err != nil {
			AbortWithError(c, err)
			return
		}

		dashboard, err := a.reports.Overview(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, dashboard)
	})
}
