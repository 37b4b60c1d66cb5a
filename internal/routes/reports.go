package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gadify-server/internal/lifecycle"
	"gadify-server/internal/storage"
)

// ReportRoutes wires /api/reports. All routes run behind AuthMiddleware.
func (a *API) ReportRoutes(r *gin.RouterGroup) {

	r.POST("", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		type reportRequest struct {
			DeviceID     string  `json:"device_id"`
			IncidentType string  `json:"incident_type"`
			IncidentDate string  `json:"incident_date"`
			Location     string  `json:"location"`
			Description  string  `json:"description"`
			PoliceReport *string `json:"police_report"`
		}

		var req reportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid report request", "error", err)
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		if req.DeviceID == "" {
			AbortWithError(c, ErrMissingParameter)
			return
		}

		incidentDate, err := time.Parse(time.RFC3339, req.IncidentDate)
		if err != nil {
			// Date-only input is accepted too, the incident time of day is
			// rarely known precisely.
			incidentDate, err = time.Parse("2006-01-02", req.IncidentDate)
			if err != nil {
				AbortWithError(c, lifecycle.ErrInvalidInput)
				return
			}
		}

		report, err := a.registry.Report(c.Request.Context(), principal, req.DeviceID, lifecycle.ReportParams{
			IncidentType: storage.IncidentType(req.IncidentType),
			IncidentDate: incidentDate,
			Location:     req.Location,
			Description:  req.Description,
			PoliceReport: req.PoliceReport,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status": "reported",
			"report": report,
		})
	})

	r.GET("", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		reports, err := a.registry.OwnReports(c.Request.Context(), principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": reports})
	})

	// Staff view across all reporters. Optional ?status= and ?type=.
	r.GET("/all", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		reports, err := a.registry.Reports(c.Request.Context(), principal,
			storage.ReportStatus(c.Query("status")),
			storage.IncidentType(c.Query("type")),
		)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": reports})
	})

	r.POST("/:id/resolve", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		type resolveRequest struct {
			ResolutionType string  `json:"resolution_type"`
			Notes          *string `json:"notes"`
		}
		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		report, err := a.registry.Resolve(c.Request.Context(), principal, c.Param("id"),
			storage.ResolutionType(req.ResolutionType), req.Notes)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "resolved",
			"report": report,
		})
	})
}
