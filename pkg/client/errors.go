package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrProtocol is matched by every ProtocolError
var ErrProtocol = errors.New("unexpected HTTP response")

// maxErrorBody limits how much of a failed response is kept
const maxErrorBody = 4096

// ProtocolError is returned when the service answers with a status other
// than the one documented for the operation
type ProtocolError struct {
	Status int
	Reason string
	Body   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected HTTP response %d: %s", e.Status, e.Reason)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// IsNotFound reports whether err is a 404 from the service
func IsNotFound(err error) bool {
	var perr *ProtocolError
	return errors.As(err, &perr) && perr.Status == http.StatusNotFound
}

func newProtocolError(resp *http.Response) *ProtocolError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &ProtocolError{
		Status: resp.StatusCode,
		Reason: reason(resp),
		Body:   strings.TrimSpace(string(body)),
	}
}

// reason extracts the reason phrase from the status line
func reason(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
