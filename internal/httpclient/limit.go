package httpclient

import (
	"errors"
	"fmt"
	"io"
)

// BodyLimitError reports a response body larger than the caller was
// willing to read.
type BodyLimitError struct {
	Max int64
}

func (e BodyLimitError) Error() string {
	return fmt.Sprintf("response body larger than %d bytes", e.Max)
}

// IsBodyLimit reports whether err came from a body-size cap.
func IsBodyLimit(err error) bool {
	var limitErr BodyLimitError
	return errors.As(err, &limitErr)
}

// ReadBody drains a response body up to max bytes. Workflow API payloads
// are small; anything past the cap means a misrouted or broken endpoint,
// so the read fails rather than buffering it. A max of zero or less reads
// everything.
func ReadBody(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, BodyLimitError{Max: max}
	}
	return data, nil
}
