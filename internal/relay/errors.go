package relay

import "fmt"

// UpstreamError is returned when the upstream could not be reached or its
// answer could not be read. A non-2xx answer is not an UpstreamError.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("relay: upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
