package mongostore

import (
	"context"
	"errors"

	"github.com/dalemusser/whoseturn/internal/app/store/docstore"
	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes that mean the deployment is out of capacity rather
// than broken: ExceededMemoryLimit, IngressRequestRateLimitExceeded, the
// request-rate code of Cosmos DB's Mongo API, and OutOfDiskSpace.
var exhaustedCodes = []int{146, 462, 16500, 14031}

const writeConflictCode = 112

// classify turns driver errors into docstore errors. Errors that did not
// come from the driver pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *docstore.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return docstore.NewError(docstore.CodeCanceled, op, err)
	case errors.Is(err, mongo.ErrNoDocuments):
		return docstore.NewError(docstore.CodeNotFound, op, nil)
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range exhaustedCodes {
			if se.HasErrorCode(code) {
				return docstore.NewError(docstore.CodeResourceExhausted, op, err)
			}
		}
		if se.HasErrorCode(writeConflictCode) || se.HasErrorLabel("TransientTransactionError") {
			return docstore.NewError(docstore.CodeConflict, op, err)
		}
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return docstore.NewError(docstore.CodeUnavailable, op, err)
	}
	if se != nil {
		return docstore.NewError(docstore.CodeUnknown, op, err)
	}
	return err
}
