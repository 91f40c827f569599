package errx

// Common error constructors for convenience

// Internal creates an internal server error
func Internal(message string) *Error {
	return New(message, TypeInternal)
}

// Validation creates a validation error
func Validation(message string) *Error {
	return New(message, TypeValidation)
}

// NotFound creates a not found error
func NotFound(message string) *Error {
	return New(message, TypeNotFound)
}

// Unauthorized creates an authorization error
func Unauthorized(message string) *Error {
	return New(message, TypeAuthorization)
}

// Conflict creates a conflict error
func Conflict(message string) *Error {
	return New(message, TypeConflict)
}

// Business creates a business logic error
func Business(message string) *Error {
	return New(message, TypeBusiness)
}

// External creates an external service error
func External(message string) *Error {
	return New(message, TypeExternal)
}

// Unauthenticated creates an unauthenticated error (missing/invalid/expired/revoked credential).
func Unauthenticated(message string) *Error {
	return New(message, TypeUnauthenticated)
}

// Forbidden creates a forbidden error (authenticated, insufficient permission).
func Forbidden(message string) *Error {
	return New(message, TypeForbidden)
}

// RateLimited creates a rate-limit error.
func RateLimited(message string) *Error {
	return New(message, TypeRateLimited)
}

// DeadlineExceeded creates a deadline-exceeded error.
func DeadlineExceeded(message string) *Error {
	return New(message, TypeDeadlineExceeded)
}

// ResourceExhausted creates a resource-exhaustion error.
func ResourceExhausted(message string) *Error {
	return New(message, TypeResourceExhausted)
}
