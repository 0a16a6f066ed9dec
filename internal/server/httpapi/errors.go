package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusByCategory is the only place auth failures become HTTP statuses.
var statusByCategory = map[auth.Category]int{
	auth.CategoryAuthentication: http.StatusUnauthorized,
	auth.CategoryAuthorization:  http.StatusForbidden,
	auth.CategoryUnavailable:    http.StatusServiceUnavailable,
}

var messageByCategory = map[auth.Category]string{
	auth.CategoryAuthentication: "invalid token",
	auth.CategoryAuthorization:  "forbidden",
	auth.CategoryUnavailable:    "service unavailable",
}

// serviceErrors maps the common sentinel errors returned by services.
var serviceErrors = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{common.ErrorUnauthorized, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{common.ErrorMissingToken, http.StatusUnauthorized, "missing_token", "invalid token"},
	{common.ErrorInvalidAuthHeaderFormat, http.StatusUnauthorized, "malformed_token", "invalid token"},
	{common.ErrorAlreadyExists, http.StatusConflict, "already_exists", "username is taken"},
	{common.ErrorInvalidLoginFormat, http.StatusBadRequest, "invalid_login", "invalid login format"},
	{common.ErrorInvalidPasswordFormat, http.StatusBadRequest, "invalid_password", "invalid password format"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found", "not found"},
}

// writeError translates err into a response and aborts the chain. It
// returns the code it used so callers can record it.
func writeError(c *gin.Context, err error) string {
	_ = c.Error(err)

	if code, ok := auth.CodeOf(err); ok {
		cat := code.Category()
		if status, ok := statusByCategory[cat]; ok {
			c.AbortWithStatusJSON(status, ErrorResponse{Code: string(code), Message: messageByCategory[cat]})
			return string(code)
		}
	}

	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			c.AbortWithStatusJSON(se.status, ErrorResponse{Code: se.code, Message: se.message})
			return se.code
		}
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "internal error"})
	return "internal"
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "malformed request body"})
}
