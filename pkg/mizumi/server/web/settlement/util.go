package settlement

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/auth"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/ledger"
)

const (
	successJsonKey = "success"
	errorJsonKey   = "error"
)

var (
	errInternal       = errors.New("internal server error")
	errRateLimited    = errors.New("too many requests")
	errRequestTimeout = errors.New("request timed out")
	errWritesDisabled = errors.New("writes are temporarily disabled")
)

type GenericApiResponseBody map[string]any

func NewGenericApiSuccessResponseBody() GenericApiResponseBody {
	return map[string]any{
		successJsonKey: true,
	}
}

func NewGenericApiFailureResponseBody(err error) GenericApiResponseBody {
	return map[string]any{
		successJsonKey: false,
		errorJsonKey:   err.Error(),
	}
}

func (b *GenericApiResponseBody) ToString() string {
	marshalled, _ := json.Marshal(b)
	return string(marshalled)
}

// HandleLedgerErrorInWebContext maps a ledger or authentication error to a
// status code and the error that is safe to return to the caller
func HandleLedgerErrorInWebContext(err error) (int, error) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch err {
	case auth.ErrInvalidSignature:
		return http.StatusUnauthorized, errors.New("authentication failed")
	case auth.ErrStaleRequest:
		return http.StatusUnauthorized, err
	case auth.ErrInvalidNonce:
		return http.StatusBadRequest, err
	case auth.ErrReplayedRequest:
		return http.StatusConflict, err
	case ledger.ErrUnauthorized:
		return http.StatusForbidden, errors.New("permission denied")
	case ledger.ErrInvalidSwapId, ledger.ErrInvalidOwner, ledger.ErrInvalidTerms, ledger.ErrInvalidAmount:
		return http.StatusBadRequest, err
	case query.ErrQueryNotSupported:
		return http.StatusBadRequest, err
	case ledger.ErrNotFound:
		return http.StatusNotFound, err
	case ledger.ErrAlreadyExists:
		return http.StatusConflict, err
	case ledger.ErrNotFirstSwap, ledger.ErrFirstSwapRequired, ledger.ErrPrecursorMissing:
		return http.StatusPreconditionFailed, err
	case ledger.ErrOverflow:
		return http.StatusUnprocessableEntity, err
	}

	if errors.Is(err, ledger.ErrTransferFailed) {
		return http.StatusUnprocessableEntity, ledger.ErrTransferFailed
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout, errRequestTimeout
	}

	return http.StatusInternalServerError, errInternal
}

func writeResponse(w http.ResponseWriter, statusCode int, body GenericApiResponseBody) error {
	w.Header().Set(contentTypeHeaderName, jsonContentTypeHeaderValue)
	w.WriteHeader(statusCode)
	_, err := w.Write([]byte(body.ToString()))
	return err
}
