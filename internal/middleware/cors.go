package middleware

import (
	"github.com/labstack/echo/v4"

	"privproxy/internal/model"
)

// CORS returns an Echo middleware that sets the proxy's permissive CORS
// headers before the handler runs, so they are present on every response,
// including error responses and preflight short-circuits.
//
// Echo's own CORS middleware is not used because it omits these headers
// when the request carries no Origin header.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for name, value := range model.CORSHeaders {
				h.Set(name, value)
			}
			return next(c)
		}
	}
}
