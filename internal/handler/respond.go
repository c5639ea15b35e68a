// Package handler provides the admin HTTP handlers. Every write goes through
// the command bus so HTTP callers get the same results as in-process ones.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// CommandExecutor is satisfied by *commands.Bus.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd commands.Command) (commands.Result, error)
}

var errInvalidID = errors.New("id must be a positive integer")

// HTTPStatus maps an error kind onto a response status.
func HTTPStatus(kind commands.ErrorKind) int {
	switch kind {
	case commands.KindNone:
		return http.StatusOK
	case commands.KindValidation:
		return http.StatusUnprocessableEntity
	case commands.KindNotFound:
		return http.StatusNotFound
	case commands.KindConflict:
		return http.StatusConflict
	case commands.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func execute(c *gin.Context, bus CommandExecutor, cmd commands.Command, okStatus int) {
	res, err := bus.Execute(c.Request.Context(), cmd)
	if err != nil {
		_ = c.Error(err)
		if res.Kind == commands.KindNone {
			res = commands.Failed(res.CorrelationID, commands.KindInfrastructure, err.Error())
		}
	}
	if !res.Success {
		c.JSON(HTTPStatus(res.Kind), httpdto.NewCommandResponse(res))
		return
	}
	c.JSON(okStatus, httpdto.NewCommandResponse(res))
}

func writeError(c *gin.Context, err error) {
	kind := commands.KindOf(err)
	if kind == commands.KindInfrastructure {
		_ = c.Error(err)
	}
	c.JSON(HTTPStatus(kind), httpdto.NewErrorResponse(err.Error(), errorCode(kind)))
}

func errorCode(kind commands.ErrorKind) string {
	switch kind {
	case commands.KindValidation:
		return "INVALID_REQUEST"
	case commands.KindNotFound:
		return "NOT_FOUND"
	case commands.KindConflict:
		return "CONFLICT"
	case commands.KindDependency:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msg, "INVALID_REQUEST"))
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, param+": "+errInvalidID.Error())
		return 0, false
	}
	return id, true
}
