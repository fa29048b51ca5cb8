package http

import (
	"net/http"
	"strconv"

	"github.com/carelink/engage/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// listDeliveriesHandler reads the ClickHouse delivery audit trail.
func listDeliveriesHandler(deliveries repository.DeliveriesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		recipient := c.QueryParam("recipient")
		if recipient == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient is required"})
		}

		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := deliveries.ListByRecipient(
			c.Request().Context(),
			recipient,
			c.QueryParam("channel"),
			c.QueryParam("outcome"),
			limit, offset,
		)
		if err != nil {
			log.Errorf("list deliveries failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"recipient":  recipient,
			"deliveries": rows,
		})
	}
}

// listFeedHandler serves the dashboard feed for a user.
func listFeedHandler(feed repository.FeedRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Param("userId")
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := feed.ListByUser(c.Request().Context(), userID, limit, offset)
		if err != nil {
			log.Errorf("list feed failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{"userId": userID, "items": rows})
	}
}
