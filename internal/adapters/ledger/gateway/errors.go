package gateway

import (
	"errors"
	"fmt"
)

// StatusError is returned for non-2xx gateway answers.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func asStatus(err error, target **StatusError) bool {
	return errors.As(err, target)
}
