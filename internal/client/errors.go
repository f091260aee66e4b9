package client

// APIError is a classified failure from the generation endpoints. The
// message is what gets surfaced to the user, so Error returns it bare.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// TimedOut reports whether the call was cancelled by its deadline
// rather than failing in transit.
func (e *APIError) TimedOut() bool {
	return e.Status == 408
}

// RateLimited reports whether the endpoint rejected the call for quota.
func (e *APIError) RateLimited() bool {
	return e.Status == 429
}
