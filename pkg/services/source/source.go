package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/de-tools/cost-digest/pkg/models/domain"
)

// Scope identifies whose recommendations are fetched.
type Scope struct {
	AccountID string
	Region    string
}

func (s Scope) String() string {
	return fmt.Sprintf("account=%s region=%s", s.AccountID, s.Region)
}

// Source supplies the raw recommendation records for a scope.
type Source interface {
	Name() string
	Fetch(ctx context.Context, scope Scope) ([]domain.RawRecord, error)
}

type ErrorKind string

const (
	KindAccessDenied ErrorKind = "access_denied"
	KindThrottled    ErrorKind = "throttled"
	KindTransient    ErrorKind = "transient"
	KindUnknown      ErrorKind = "unknown"
)

// Error reports that recommendations could not be fetched. It is always fatal
// to the run.
type Error struct {
	Source string
	Scope  Scope
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s unavailable (%s, %s): %v", e.Source, e.Kind, e.Scope, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(source string, scope Scope, err error) *Error {
	return &Error{Source: source, Scope: scope, Kind: Classify(err), Err: err}
}

var accessDeniedCodes = map[string]bool{
	"AccessDenied":                  true,
	"AccessDeniedException":         true,
	"AccountNotSubscribedException": true,
	"AuthFailure":                   true,
	"ExpiredToken":                  true,
	"ExpiredTokenException":         true,
	"InvalidAccessKeyId":            true,
	"InvalidClientTokenId":          true,
	"InvalidSignatureException":     true,
	"MissingAuthenticationToken":    true,
	"OptInRequiredException":        true,
	"SignatureDoesNotMatch":         true,
	"UnauthorizedException":         true,
	"UnauthorizedOperation":         true,
	"UnrecognizedClientException":   true,
}

var throttledCodes = map[string]bool{
	"LimitExceededException":        true,
	"RequestLimitExceeded":          true,
	"ServiceQuotaExceededException": true,
	"Throttling":                    true,
	"ThrottlingException":           true,
	"TooManyRequestsException":      true,
}

// Classify maps an error to the kind reported to operators.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case accessDeniedCodes[code]:
			return KindAccessDenied
		case throttledCodes[code]:
			return KindThrottled
		case apiErr.ErrorFault() == smithy.FaultServer:
			return KindTransient
		default:
			return KindUnknown
		}
	}

	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return KindTransient
	}

	return KindUnknown
}
