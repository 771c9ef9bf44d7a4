package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const ctxError = "handler_error"

// RecordError attaches an error a handler already answered, so the
// request line carries it.
func RecordError(c echo.Context, err error) { c.Set(ctxError, err) }

// RequestLogger writes one structured line per request.  Server errors
// log at error level, client errors at warn, the rest at info.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			}

			if err == nil {
				err, _ = c.Get(ctxError).(error)
			}
			req, res := c.Request(), c.Response()
			var ev *zerolog.Event
			switch {
			case res.Status >= 500:
				ev = log.Error().Err(err)
			case res.Status >= 400:
				ev = log.Warn().Err(err)
			default:
				ev = log.Info()
			}
			ev = ev.Str("method", req.Method).
				Str("route", c.Path()).
				Str("uri", req.RequestURI).
				Int("status", res.Status).
				Int64("bytes", res.Size).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP())
			if id := res.Header().Get(echo.HeaderXRequestID); id != "" {
				ev = ev.Str("request_id", id)
			}
			if uid, ok := UserID(c); ok {
				ev = ev.Uint64("user_id", uid)
			}
			ev.Msg("request")
			return nil
		}
	}
}
