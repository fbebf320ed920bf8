package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CustomErrorHandler creates a custom error handler for Echo. Callback
// routes answer in JSON; the public recovery pages get a plain page so a
// provider failure never surfaces as a raw exception page.
func CustomErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	errorMessage := ""

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			errorMessage = msg
		}
	}

	if errorMessage == "" {
		switch code {
		case http.StatusNotFound:
			errorMessage = "The page you're looking for doesn't exist."
		case http.StatusForbidden:
			errorMessage = "You don't have permission to access this resource."
		case http.StatusBadRequest:
			errorMessage = "The request could not be processed."
		default:
			errorMessage = "Something went wrong. Please try again later."
		}
	}

	c.Logger().Error(err)

	if c.Response().Committed {
		return
	}

	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/callbacks/") {
		c.JSON(code, map[string]string{"error": errorMessage})
		return
	}

	c.String(code, errorMessage)
}
