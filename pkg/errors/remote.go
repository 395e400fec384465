package errors

// FromRemoteCode maps an S3 protocol error code to a volstore code. Not-found
// codes map to ErrCodeObjectNotFound; callers substitute their own not-found
// code for bucket-level operations.
func FromRemoteCode(code string) (ErrorCode, bool) {
	switch code {
	case "NoSuchKey", "NotFound":
		return ErrCodeObjectNotFound, true
	case "NoSuchBucket":
		return ErrCodeBucketNotFound, true
	case "AccessDenied", "Forbidden", "AllAccessDisabled", "AccountProblem":
		return ErrCodeAccessDenied, true
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
		return ErrCodeAuthenticationFailed, true
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
		return ErrCodeThrottled, true
	case "ServiceUnavailable", "InternalError", "XMinioServerNotInitialized":
		return ErrCodeServiceUnavailable, true
	case "RequestTimeout", "RequestTimeTooSkewed":
		return ErrCodeNetworkError, true
	}
	return "", false
}

// FromHTTPStatus maps a response status to a volstore code.
func FromHTTPStatus(status int) (ErrorCode, bool) {
	switch {
	case status == 404:
		return ErrCodeObjectNotFound, true
	case status == 401:
		return ErrCodeAuthenticationFailed, true
	case status == 403:
		return ErrCodeAccessDenied, true
	case status == 429:
		return ErrCodeThrottled, true
	case status >= 500:
		return ErrCodeServiceUnavailable, true
	}
	return "", false
}
