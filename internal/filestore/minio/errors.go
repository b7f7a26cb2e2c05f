package minio

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/querygate/internal/errs"
)

// mapError translates a MinIO SDK error into a classified error, the same
// way the database drivers do.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case http.StatusBadRequest:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		}
	}

	// Anything else is a connection / I/O failure.
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
