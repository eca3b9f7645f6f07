package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/sashabaranov/go-openai"
)

// IsModelNotFound reports whether err is the provider rejecting the model
// name itself. Only this class of error moves on to the next model in the
// list; everything else degrades immediately.
func IsModelNotFound(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusNotFound {
			return true
		}
		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			return true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}

// errorCode labels a provider error for the error counter.
func errorCode(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return strconv.Itoa(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return strconv.Itoa(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport"
}
