package apperrors

type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidIdentifier     Code = "INVALID_IDENTIFIER"
	CodeMalformedConversation Code = "MALFORMED_CONVERSATION_ID"
	CodeConversationMismatch  Code = "CONVERSATION_ID_MISMATCH"
	CodeUnsafeContent         Code = "UNSAFE_CONTENT"
	CodeMessageTooLong        Code = "MESSAGE_TOO_LONG"
	CodeEmptyAfterSanitize    Code = "EMPTY_AFTER_SANITIZATION"
	CodeSizeExceeded          Code = "SIZE_EXCEEDED"
	CodeInvalidMime           Code = "INVALID_MIME"
	CodeSignatureMismatch     Code = "SIGNATURE_MISMATCH"
	CodeInvalidDuration       Code = "INVALID_DURATION"
	CodeNotMatched            Code = "NOT_MATCHED"
	CodeBlocked               Code = "BLOCKED"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeRateLimited           Code = "RATE_LIMITED"
	CodeQuotaExceeded         Code = "QUOTA_EXCEEDED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeStorage               Code = "STORAGE"
	CodeInternal              Code = "INTERNAL"
)
