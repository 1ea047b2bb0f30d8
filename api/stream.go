package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/dogukan1212/moiport-sub000/domain"
	"github.com/dogukan1212/moiport-sub000/realtime"
)

// streamBoard is the realtime attach point. A connection authenticates
// with a bearer token (handshake header or token query param), is
// checked against the tenant directory, and joins exactly one room:
// the tenant staff room, or the tenant+customer client room for portal
// users. Verification failures get a 401 and never join a room.
func streamBoard(auth Authenticator, dir Directory, hub *realtime.Hub, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		p, err := auth.PrincipalFromAuthHeader(authHeader)
		if err != nil {
			logger.WithError(err).Warn("stream auth rejected")
			return c.String(http.StatusUnauthorized, err.Error())
		}
		exists, err := dir.UserExists(c.Request().Context(), p.TenantID, p.UserID)
		if err != nil {
			logger.WithError(err).Error("stream user lookup failed")
			return c.String(http.StatusInternalServerError, "stream unavailable")
		}
		if !exists {
			logger.WithField("user", p.UserID).Warn("stream rejected: unknown tenant user")
			return c.String(http.StatusUnauthorized, "unknown user")
		}

		room := domain.StaffRoom(p.TenantID)
		if p.Role == domain.RoleClient {
			room = domain.ClientRoom(p.TenantID, p.CustomerID)
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := hub.Subscribe(room)
		defer hub.Unsubscribe(room, ch)

		hello, _ := json.Marshal(domain.Envelope{Event: "connected", TS: time.Now().UnixMilli()})
		if err := writeFrame(c, hello); err != nil {
			return nil
		}
		flusher.Flush()

		for {
			select {
			case <-ctx.Done():
				return nil
			case frame := <-ch:
				if err := writeFrame(c, frame); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeFrame(c echo.Context, data []byte) error {
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	_, err := c.Response().Write([]byte("\n\n"))
	return err
}
