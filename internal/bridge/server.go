// Package bridge is the synchronous unary call path: a producer invokes
// the notification service directly, bypassing the log, for low-latency
// event types. The ack means receipt, not delivery.
package bridge

import (
	"net/http"

	"github.com/carelink/engage/internal/config"
	"github.com/carelink/engage/internal/model"
	"github.com/carelink/engage/internal/notifier"
	"github.com/carelink/engage/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// PublishEventHandler accepts one event and hands it to the router
// inline. Event types routed through the log are rejected: exactly one
// delivery path per type, or the same event notifies twice.
func PublishEventHandler(cfg config.Config, router *notifier.Router) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ev model.Event
		if err := c.Bind(&ev); err != nil {
			return c.JSON(http.StatusBadRequest, model.Ack{OK: false, Error: "bad request"})
		}

		raw, err := ev.Encode()
		if err != nil {
			return c.JSON(http.StatusBadRequest, model.Ack{OK: false, Error: "bad request"})
		}
		parsed, err := model.ParseEvent(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, model.Ack{OK: false, Error: err.Error()})
		}

		if cfg.RouteFor(parsed.Type.String()) != config.RouteDirect {
			log.Warnf("bridge rejected log-routed event type %q", parsed.Type)
			return c.JSON(http.StatusConflict, model.Ack{
				OK:    false,
				Error: "event type is routed through the log, not the direct path",
			})
		}

		if parsed.ID == "" {
			parsed.ID = util.New()
		}

		router.Handle(c.Request().Context(), parsed)

		return c.JSON(http.StatusOK, model.Ack{OK: true})
	}
}
