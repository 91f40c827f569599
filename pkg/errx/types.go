package errx

// Type represents the category of error
type Type string

const (
	// TypeInternal represents internal server errors
	TypeInternal Type = "INTERNAL"

	// TypeValidation represents validation errors
	TypeValidation Type = "VALIDATION"

	// TypeAuthorization represents authorization/authentication errors
	TypeAuthorization Type = "AUTHORIZATION"

	// TypeNotFound represents resource not found errors
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict represents resource conflict errors
	TypeConflict Type = "CONFLICT"

	// TypeBusiness represents business logic errors
	TypeBusiness Type = "BUSINESS"

	// TypeExternal represents errors from external services
	TypeExternal Type = "EXTERNAL"

	// TypeUnauthenticated represents a missing, malformed, expired, or
	// revoked credential. Distinct from TypeAuthorization, which the
	// security core no longer uses directly.
	TypeUnauthenticated Type = "UNAUTHENTICATED"

	// TypeForbidden represents an authenticated principal lacking the
	// permission required for the action.
	TypeForbidden Type = "FORBIDDEN"

	// TypeRateLimited represents a request rejected by a rate limiter.
	TypeRateLimited Type = "RATE_LIMITED"

	// TypeDeadlineExceeded represents a request whose propagated deadline
	// elapsed before the operation completed.
	TypeDeadlineExceeded Type = "DEADLINE_EXCEEDED"

	// TypeResourceExhausted represents exhaustion of a bounded resource,
	// e.g. the database connection pool.
	TypeResourceExhausted Type = "RESOURCE_EXHAUSTED"
)

// String returns the string representation of the error type
func (t Type) String() string {
	return string(t)
}
