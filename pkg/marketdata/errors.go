package marketdata

import "fmt"

// APIError is a non-200 answer from the market data API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}
