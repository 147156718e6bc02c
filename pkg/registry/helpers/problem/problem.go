package problem

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ErrorDetail struct {
	In       string `json:"in"`
	Location string `json:"location"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// APIError implements error + Problem Details (RFC 7807). The constructors
// below are the registry's whole error taxonomy: validation (400),
// conflict (409), gate rejection (424), download blocked (412), not found
// (404), too many results (413), upstream failure (502) and unexpected
// internal state (500). Upstream failures are always surfaced, never
// defaulted and never retried here.
type APIError struct {
	Title  string        `json:"title"`
	Status int           `json:"status"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

func (e APIError) Error() string { return e.Title }

func NewBadRequest(location, detail string, params ...InvalidParam) APIError {
	return APIError{
		Title:  "Request validation failed",
		Status: 400,
		Errors: toErrorDetails(params, detail, "body", location, "bad_request"),
	}
}

func NewConflict(location, detail string) APIError {
	return APIError{
		Title:  "Package exists already",
		Status: 409,
		Errors: toErrorDetails(nil, detail, "body", location, "conflict"),
	}
}

// NewGateRejected signals a policy refusal by the rating gate, distinct
// from malformed input.
func NewGateRejected(location, detail string) APIError {
	return APIError{
		Title:  "Package disqualified by rating",
		Status: 424,
		Errors: toErrorDetails(nil, detail, "body", location, "gate_rejected"),
	}
}

// NewDownloadBlocked signals a gate-script refusal on retrieval.
func NewDownloadBlocked(location, detail string) APIError {
	return APIError{
		Title:  "Download blocked by gate script",
		Status: 412,
		Errors: toErrorDetails(nil, detail, "path", location, "download_blocked"),
	}
}

func NewNotFound(location, detail string, params ...InvalidParam) APIError {
	return APIError{
		Title:  "Resource Not Found",
		Status: 404,
		Errors: toErrorDetails(params, detail, "path", location, "not_found"),
	}
}

func NewTooManyResults(detail string) APIError {
	return APIError{
		Title:  "Too many packages returned",
		Status: 413,
		Errors: toErrorDetails(nil, detail, "body", "queries", "too_many_results"),
	}
}

// NewUpstreamError covers any external failure: archive decode, provider
// fetch, the rating subprocess or the gate script.
func NewUpstreamError(location, detail string) APIError {
	return APIError{
		Title:  "Upstream dependency failed",
		Status: 502,
		Errors: toErrorDetails(nil, detail, "", location, "upstream_error"),
	}
}

// NewInternalServerError reports broken internal invariants, e.g. a record
// pointing at a missing metadata row. Never conflated with not-found.
func NewInternalServerError(detail string) APIError {
	return APIError{
		Title:  "Internal Server Error",
		Status: 500,
		Errors: toErrorDetails(nil, detail, "", "", "internal_error"),
	}
}

func toErrorDetails(params []InvalidParam, fallbackDetail, fallbackIn, fallbackLocation, fallbackCode string) []ErrorDetail {
	if len(params) == 0 {
		if fallbackDetail == "" {
			return nil
		}
		return []ErrorDetail{{
			In:       fallbackIn,
			Location: fallbackLocation,
			Code:     fallbackCode,
			Detail:   fallbackDetail,
		}}
	}
	out := make([]ErrorDetail, 0, len(params))
	for _, p := range params {
		out = append(out, ErrorDetail{
			In:       "body",
			Location: p.Name,
			Code:     p.Name,
			Detail:   p.Reason,
		})
	}
	return out
}
