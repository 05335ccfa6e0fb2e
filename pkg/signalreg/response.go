package signalreg

import (
	"net/http"
)

// ServiceResponse is the single-shot result of a registration entry point.
type ServiceResponse[T any] struct {
	Result *T
	Status int
	Err    error
}

// ForResult wraps a successful response.
func ForResult[T any](result *T, status int) ServiceResponse[T] {
	return ServiceResponse[T]{Result: result, Status: status}
}

// ForUnknownError wraps a transport or storage failure. The whole
// registration may be retried; partial local state converges on re-run.
func ForUnknownError[T any](err error) ServiceResponse[T] {
	return ServiceResponse[T]{Err: err}
}

func (r ServiceResponse[T]) IsSuccess() bool {
	return r.Err == nil && r.Status == http.StatusOK
}
