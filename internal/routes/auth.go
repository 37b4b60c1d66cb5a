package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gadify-server/internal/identity"
	"gadify-server/internal/storage"
)

type authResponse struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// AuthRoutes wires /auth. Sign-up over HTTP always creates student
// accounts; staff accounts are provisioned from the command line.
func (a *API) AuthRoutes(r *gin.RouterGroup) {

	r.POST("/signup", func(c *gin.Context) {
		type signupRequest struct {
			Email        string  `json:"email"`
			Password     string  `json:"password"`
			FullName     string  `json:"full_name"`
			MatricNumber *string `json:"matric_number"`
			PhoneNumber  *string `json:"phone_number"`
		}

		var req signupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid signup request", "error", err)
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		profile, token, err := a.identity.SignUp(c.Request.Context(), identity.SignUpParams{
			Email:        req.Email,
			Password:     req.Password,
			FullName:     req.FullName,
			Role:         storage.RoleStudent,
			MatricNumber: req.MatricNumber,
			PhoneNumber:  req.PhoneNumber,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		setAuthCookie(c, token, int(a.identity.SessionTTL().Seconds()))
		c.JSON(http.StatusCreated, authResponse{
			Status: "signed_up",
			UserID: profile.ID,
			Role:   string(profile.Role),
		})
	})

	r.POST("/signin", func(c *gin.Context) {
		type signinRequest struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}

		var req signinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		token, err := a.identity.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		setAuthCookie(c, token, int(a.identity.SessionTTL().Seconds()))
		c.JSON(http.StatusOK, authResponse{Status: "signed_in"})
	})

	r.POST("/signout", func(c *gin.Context) {
		a.identity.SignOut(c.Request.Context(), sessionToken(c))
		clearAuthCookie(c)
		c.JSON(http.StatusOK, authResponse{Status: "signed_out"})
	})

	// Onboarding and profile edits. Completing department, study level and
	// hall of residence flips the profile to complete.
	r.PATCH("/profile", a.AuthMiddleware(), func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, identity.ErrUnauthenticated)
			return
		}

		type profileRequest struct {
			FullName        *string `json:"full_name"`
			MatricNumber    *string `json:"matric_number"`
			PhoneNumber     *string `json:"phone_number"`
			Department      *string `json:"department"`
			StudyLevel      *string `json:"study_level"`
			HallOfResidence *string `json:"hall_of_residence"`
			HomeAddress     *string `json:"home_address"`
			Biography       *string `json:"biography"`
		}
		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		profile, err := a.identity.UpdateProfile(c.Request.Context(), principal.ID, identity.ProfileUpdate{
			FullName:        req.FullName,
			MatricNumber:    req.MatricNumber,
			PhoneNumber:     req.PhoneNumber,
			Department:      req.Department,
			StudyLevel:      req.StudyLevel,
			HallOfResidence: req.HallOfResidence,
			HomeAddress:     req.HomeAddress,
			Biography:       req.Biography,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "updated",
			"full_name": profile.FullName,
		})
	})

	// Session status, used by clients to decide between the onboarding
	// flow and the dashboard.
	r.GET("/status", a.AuthMiddleware(), func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, identity.ErrUnauthenticated)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "authenticated",
			"user_id":          principal.ID,
			"role":             principal.Role,
			"profile_complete": principal.ProfileComplete,
		})
	})
}
