package http

import (
	"net/http"
	"strings"

	"github.com/carelink/engage/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type deviceReq struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// registerDeviceHandler upserts a push token; re-registering a revoked
// token reactivates it and bumps last_seen_at.
func registerDeviceHandler(devices repository.DeviceTokensRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req deviceReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.UserID = strings.TrimSpace(req.UserID)
		req.Token = strings.TrimSpace(req.Token)
		if req.UserID == "" || req.Token == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := devices.Upsert(c.Request().Context(), req.UserID, req.Token); err != nil {
			log.Errorf("device upsert failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]bool{"registered": true})
	}
}

func revokeDeviceHandler(devices repository.DeviceTokensRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req deviceReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" || req.Token == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		if err := devices.Revoke(c.Request().Context(), req.UserID, req.Token); err != nil {
			log.Errorf("device revoke failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]bool{"revoked": true})
	}
}
