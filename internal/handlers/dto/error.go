package dto

import "github.com/thereayou/abstrio/internal/apperror"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    apperror.Kind `json:"kind"`
	Message string        `json:"message"`
}

func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Kind: apperror.KindOf(err), Message: apperror.MessageOf(err)}
}
