package s3

import (
	"context"
	stderr "errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/volstore/volstore/pkg/errors"
)

// translateError maps an SDK error onto the volstore taxonomy. notFound is the
// code used for a 404 (object for key operations, bucket for bucket ones).
func translateError(err error, operation, key string, notFound errors.ErrorCode) *errors.VolstoreError {
	code := classify(err, notFound)
	return errors.Wrap(code, fmt.Sprintf("%s failed for %s", operation, key), err).
		WithComponent(DriverName).
		WithOperation(operation).
		WithContext("key", key)
}

func classify(err error, notFound errors.ErrorCode) errors.ErrorCode {
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return notFound
	case isErrorType[*s3types.NoSuchBucket](err):
		return errors.ErrCodeBucketNotFound
	case stderr.Is(err, context.DeadlineExceeded):
		return errors.ErrCodeOperationTimeout
	case stderr.Is(err, context.Canceled):
		return errors.ErrCodeOperationCanceled
	}

	var apiErr smithy.APIError
	if stderr.As(err, &apiErr) {
		if code, ok := errors.FromRemoteCode(apiErr.ErrorCode()); ok {
			return withNotFound(code, notFound)
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if stderr.As(err, &respErr) {
		if code, ok := errors.FromHTTPStatus(respErr.HTTPStatusCode()); ok {
			return withNotFound(code, notFound)
		}
	}

	var netErr net.Error
	if stderr.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrCodeConnectionTimeout
	}

	if retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary {
		return errors.ErrCodeNetworkError
	}

	return errors.ErrCodeOperationFailed
}

func withNotFound(code, notFound errors.ErrorCode) errors.ErrorCode {
	if code == errors.ErrCodeObjectNotFound {
		return notFound
	}
	return code
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
