package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gadify-server/internal/storage"
)

// studentView hides credential material from directory listings.
type studentView struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	FullName        string  `json:"full_name"`
	MatricNumber    *string `json:"matric_number"`
	PhoneNumber     *string `json:"phone_number"`
	Department      *string `json:"department"`
	StudyLevel      *string `json:"study_level"`
	HallOfResidence *string `json:"hall_of_residence"`
	Status          string  `json:"status"`
}

// StudentRoutes wires the staff directory under /api/students.
func (a *API) StudentRoutes(r *gin.RouterGroup) {

	r.GET("", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		students, err := a.registry.Students(c.Request.Context(), principal, c.Query("search"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		views := make([]studentView, 0, len(students))
		for _, s := range students {
			views = append(views, studentView{
				ID:              s.ID,
				Email:           s.Email,
				FullName:        s.FullName,
				MatricNumber:    s.MatricNumber,
				PhoneNumber:     s.PhoneNumber,
				Department:      s.Department,
				StudyLevel:      s.StudyLevel,
				HallOfResidence: s.HallOfResidence,
				Status:          string(s.Status),
			})
		}
		c.JSON(http.StatusOK, gin.H{"students": views})
	})

	r.PATCH("/:id/status", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		type statusRequest struct {
			Status string `json:"status"`
		}
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		if err := a.registry.SetStudentStatus(c.Request.Context(), principal, c.Param("id"), storage.ProfileStatus(req.Status)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	})
}
