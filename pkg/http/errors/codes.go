package errors

// Error codes for standardized error responses
const (
	// Entitlement errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeNotEntitled            = "not_entitled"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"
	ErrCodeUnknownQuestion  = "unknown_question"
	ErrCodeUnknownOption    = "unknown_option"
	ErrCodeOutOfRange       = "value_out_of_range"
	ErrCodeKindMismatch     = "kind_mismatch"

	// Resource errors
	ErrCodeNotFound           = "not_found"
	ErrCodeAssessmentNotFound = "assessment_not_found"
	ErrCodeAttemptNotFound    = "attempt_not_found"
	ErrCodeInvalidAttemptID   = "invalid_attempt_id"
	ErrCodeConflict           = "conflict"

	// Attempt lifecycle errors
	ErrCodeAttemptComplete    = "attempt_complete"
	ErrCodeAttemptNotComplete = "attempt_not_complete"
	ErrCodeAttemptInvalid     = "attempt_invalid"
	ErrCodeAttemptBusy        = "attempt_busy"
	ErrCodeAnswerRequired     = "answer_required"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeConnectionError    = "connection_error"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
	ErrCodeExportFailed       = "export_failed"

	// Feature availability
	ErrCodeFeatureNotAvailable = "feature_not_available"
)
