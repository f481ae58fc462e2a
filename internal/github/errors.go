package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
)

// ErrorKind classifies a failed call against the repository API.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindAuthExpired
	KindNotFound
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transport"
	}
}

// RemoteError is returned by every Client operation that fails.
type RemoteError struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("github %s: %s: %s", e.Op, e.Kind, e.Detail)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsKind reports whether err is a RemoteError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == kind
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	re := &RemoteError{Kind: KindTransport, Op: op, Detail: err.Error(), Err: err}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	var respErr *gh.ErrorResponse
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		re.Kind = KindRateLimited
	case errors.As(err, &respErr) && respErr.Response != nil:
		re.Detail = respErr.Message
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized:
			re.Kind = KindAuthExpired
		case http.StatusNotFound:
			re.Kind = KindNotFound
		case http.StatusTooManyRequests:
			re.Kind = KindRateLimited
		}
	case errors.Is(err, context.DeadlineExceeded):
		re.Detail = "timed out"
	}
	return re
}
