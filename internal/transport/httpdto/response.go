package httpdto

import (
	"strings"

	"billing-lifecycle/internal/commands"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// NewCommandResponse wraps a workflow result. Failed results keep the result
// as data so callers still see the correlation id.
func NewCommandResponse(res commands.Result) Response[commands.Result] {
	out := Response[commands.Result]{Success: res.Success, Data: res}
	if !res.Success {
		out.Error = res.Message
		out.Code = strings.ToUpper(string(res.Kind))
	}
	return out
}
