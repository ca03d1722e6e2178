package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// statusKinds classifies S3 responses by HTTP status.
var statusKinds = map[int]errs.ErrKind{
	http.StatusNotFound:     errs.ErrKindNotFound,
	http.StatusForbidden:    errs.ErrKindPermissionDenied,
	http.StatusUnauthorized: errs.ErrKindPermissionDenied,
	http.StatusBadRequest:   errs.ErrKindInvalidInput,
}

// codeKinds classifies S3 responses by error code when the status alone
// says nothing useful.
var codeKinds = map[string]errs.ErrKind{
	"NoSuchBucket":          errs.ErrKindNotFound,
	"NoSuchKey":             errs.ErrKindNotFound,
	"NoSuchUpload":          errs.ErrKindNotFound,
	"AccessDenied":          errs.ErrKindPermissionDenied,
	"InvalidAccessKeyId":    errs.ErrKindPermissionDenied,
	"SignatureDoesNotMatch": errs.ErrKindPermissionDenied,
	"InvalidBucketName":     errs.ErrKindInvalidInput,
	"InvalidObjectName":     errs.ErrKindInvalidInput,
	"KeyTooLongError":       errs.ErrKindInvalidInput,
	"RequestTimeout":        errs.ErrKindTimeout,
	"SlowDown":              errs.ErrKindTimeout,
}

// mapError gives a MinIO failure the same kinds the SQL drivers use, so an
// export that cannot reach its bucket answers 503 like a store that is down.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(kindOf(err), msg, err)
}

func kindOf(err error) errs.ErrKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.ErrKindTimeout
	}

	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return errs.ErrKindStoreUnavailable
	}
	if kind, ok := statusKinds[resp.StatusCode]; ok {
		return kind
	}
	if kind, ok := codeKinds[resp.Code]; ok {
		return kind
	}
	return errs.ErrKindStoreUnavailable
}
