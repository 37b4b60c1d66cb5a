package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"gadify-server/internal/lifecycle"
	"gadify-server/internal/storage"
)

// Lifetime of a signed device pass. The QR is rendered on demand, so a
// short window keeps leaked pass images from staying valid for long.
const devicePassTTL = 15 * time.Minute

const qrImageSize = 256

// DeviceRoutes wires /api/devices. All routes run behind AuthMiddleware.
func (a *API) DeviceRoutes(r *gin.RouterGroup) {

	r.POST("", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		type registerRequest struct {
			Name              string  `json:"name"`
			SerialNumber      string  `json:"serial_number"`
			Brand             string  `json:"brand"`
			Model             string  `json:"model"`
			Type              string  `json:"type"`
			AdditionalDetails *string `json:"additional_details"`
			ImageURL          *string `json:"image_url"`
		}

		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Invalid device registration request", "error", err)
			AbortWithError(c, ErrInvalidRequest)
			return
		}

		device, err := a.registry.Register(c.Request.Context(), principal, lifecycle.DeviceRegistration{
			Name:              req.Name,
			SerialNumber:      req.SerialNumber,
			Brand:             req.Brand,
			Model:             req.Model,
			Type:              storage.DeviceType(req.Type),
			AdditionalDetails: req.AdditionalDetails,
			ImageURL:          req.ImageURL,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"status": "registered",
			"device": device,
		})
	})

	r.GET("", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		devices, err := a.registry.OwnDevices(c.Request.Context(), principal)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"devices":          devices,
			"profile_complete": principal.ProfileComplete,
		})
	})

	// Staff view across all owners. Optional ?status= filter.
	r.GET("/all", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		devices, err := a.registry.AllDevices(c.Request.Context(), principal, storage.DeviceStatus(c.Query("status")))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"devices": devices})
	})

	r.GET("/:id", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device, err := a.registry.Device(c.Request.Context(), principal, c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"device": device})
	})

	// Printable QR property pass. Only verified devices get one: a pass
	// on a pending or reported device would vouch for the wrong thing.
	r.GET("/:id/pass.png", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		device, err := a.registry.Device(c.Request.Context(), principal, c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if device.Status != storage.DeviceStatusVerified {
			AbortWithError(c, ErrPassNotAvailable)
			return
		}

		token, err := a.identity.SignDevicePass(device.ID, devicePassTTL)
		if err != nil {
			slog.Error("Failed to sign device pass", "device_id", device.ID, "error", err)
			AbortWithError(c, ErrInternalServer)
			return
		}

		png, err := qrcode.Encode(token, qrcode.Medium, qrImageSize)
		if err != nil {
			slog.Error("Failed to encode pass QR", "device_id", device.ID, "error", err)
			AbortWithError(c, ErrInternalServer)
			return
		}

		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", png)
	})

	r.POST("/:id/verify", func(c *gin.Context) {
		principal, err := GetPrincipal(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		type verifyRequest struct {
			Notes *string `json:"notes"`
		}
		var req verifyRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				AbortWithError(c, ErrInvalidRequest)
				return
			}
		}

		device, err := a.registry.Verify(c.Request.Context(), principal, c.Param("id"), req.Notes)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "verified",
			"device": device,
		})
	})
}

// PassRoutes wires the unauthenticated pass check. Scanning a pass QR
// lands here: the token is validated and the device summary returned, so
// gate staff can match the pass against the hardware in front of them.
func (a *API) PassRoutes(r *gin.RouterGroup) {
	r.GET("/:token", func(c *gin.Context) {
		deviceID, err := a.identity.VerifyDevicePass(c.Param("token"))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"valid": false})
			return
		}

		device, err := a.registry.PassCheck(c.Request.Context(), deviceID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":  device.Status == storage.DeviceStatusVerified,
			"device": device,
		})
	})
}
