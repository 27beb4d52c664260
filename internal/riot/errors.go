package riot

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx upstream response surfaced to the caller, with
// the status and body preserved.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("riot API error %d - %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
