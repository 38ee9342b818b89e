package settlement

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/database/query"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/swap"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/data/user"
)

const (
	maxRequestBodySize = 1 << 16
)

// signedRequest is a JSON body along with the signatures provided over the
// route path and its raw bytes
type signedRequest struct {
	message []byte

	nonce     string
	timestamp time.Time

	owner          *common.Account
	ownerSignature []byte

	admin          *common.Account
	adminSignature []byte
}

// requestEnvelope is carried by every signed body so a captured request
// cannot be submitted again
type requestEnvelope struct {
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

type ownerRequestBody struct {
	Owner string `json:"owner"`
}

type openSwapRequestBody struct {
	Owner  string `json:"owner"`
	SwapId string `json:"swap_id"`
}

type initiateSwapRequestBody struct {
	Owner      string `json:"owner"`
	SwapId     string `json:"swap_id"`
	Stablecoin string `json:"stablecoin"`
	Amount     uint64 `json:"amount"`
	Fiat       string `json:"fiat"`
	Direction  string `json:"direction"`
}

type completeSwapRequestBody struct {
	Owner         string `json:"owner"`
	SwapId        string `json:"swap_id"`
	Settled       bool   `json:"settled"`
	SettledAmount uint64 `json:"settled_amount"`
}

// signedMessage is the payload signed by the owner and admin: the route path
// and the raw body separated by a newline
func signedMessage(path string, body []byte) []byte {
	message := make([]byte, 0, len(path)+1+len(body))
	message = append(message, path...)
	message = append(message, '\n')
	return append(message, body...)
}

// newSignedRequestFromHttpContext reads the request body into dst and parses
// the signature headers. The admin headers are only required when
// requireAdmin is set.
func newSignedRequestFromHttpContext(r *http.Request, path string, dst any, ownerKey func() string, requireAdmin bool) (*signedRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxRequestBodySize {
		return nil, errors.New("request body too large")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return nil, errors.New("request body is not valid json")
	}

	var envelope requestEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.New("request body is not valid json")
	}
	if len(envelope.Nonce) == 0 {
		return nil, errors.New("nonce is required")
	}
	if envelope.Timestamp <= 0 {
		return nil, errors.New("timestamp is required")
	}

	owner, err := common.NewAccountFromPublicKeyString(ownerKey())
	if err != nil {
		return nil, errors.New("owner is not a public key")
	}

	ownerSignature, err := decodeSignatureHeader(r, ownerSignatureHeaderName)
	if err != nil {
		return nil, err
	}

	req := &signedRequest{
		message:        signedMessage(path, body),
		nonce:          envelope.Nonce,
		timestamp:      time.Unix(envelope.Timestamp, 0),
		owner:          owner,
		ownerSignature: ownerSignature,
	}

	if !requireAdmin {
		return req, nil
	}

	adminKeyHeader := r.Header.Get(adminKeyHeaderName)
	if len(adminKeyHeader) == 0 {
		return nil, errors.Errorf("%s header missing", adminKeyHeaderName)
	}

	req.admin, err = common.NewAccountFromPublicKeyString(adminKeyHeader)
	if err != nil {
		return nil, errors.New("admin key is not a public key")
	}

	req.adminSignature, err = decodeSignatureHeader(r, adminSignatureHeaderName)
	if err != nil {
		return nil, err
	}

	return req, nil
}

func decodeSignatureHeader(r *http.Request, name string) ([]byte, error) {
	value := r.Header.Get(name)
	if len(value) == 0 {
		return nil, errors.Errorf("%s header missing", name)
	}

	signature, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Errorf("%s header is not base58", name)
	}
	return signature, nil
}

func ownerFromQuery(r *http.Request) (*common.Account, error) {
	ownerQueryParam := r.URL.Query()["owner"]
	if len(ownerQueryParam) < 1 {
		return nil, errors.New("owner query parameter missing")
	}

	owner, err := common.NewAccountFromPublicKeyString(ownerQueryParam[0])
	if err != nil {
		return nil, errors.New("owner is not a public key")
	}
	return owner, nil
}

func queryOptionsFromQuery(r *http.Request) ([]query.Option, error) {
	var opts []query.Option

	values := r.URL.Query()

	if cursorParam := values.Get("cursor"); len(cursorParam) > 0 {
		cursor, err := query.ParseCursor(cursorParam)
		if err != nil {
			return nil, err
		}
		opts = append(opts, query.WithCursor(cursor))
	}

	if limitParam := values.Get("limit"); len(limitParam) > 0 {
		limit, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil {
			return nil, errors.New("limit is invalid")
		}
		opts = append(opts, query.WithLimit(limit))
	}

	if orderParam := values.Get("order"); len(orderParam) > 0 {
		direction, err := query.ToOrdering(orderParam)
		if err != nil {
			return nil, errors.New("order must be asc or desc")
		}
		opts = append(opts, query.WithDirection(direction))
	}

	return opts, nil
}

func cursorFor(record *swap.Record) string {
	return query.ToCursor(record.Id).ToBase58()
}

func toUserView(record *user.Record) map[string]any {
	return map[string]any{
		"address":             record.Address,
		"owner":               record.Owner,
		"swap_count":          record.SwapCount,
		"total_settled_value": record.TotalSettledValue,
		"created_at":          record.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toSwapView(record *swap.Record) map[string]any {
	view := map[string]any{
		"address":    record.Address,
		"owner":      record.Owner,
		"swap_id":    record.SwapId,
		"state":      record.State.String(),
		"created_at": record.CreatedAt.UTC().Format(time.RFC3339),
	}

	if record.State == swap.StateCreated {
		return view
	}

	view["stablecoin"] = record.Stablecoin.String()
	view["fiat"] = record.Fiat.String()
	view["direction"] = record.Direction.String()
	view["amount"] = record.RequestedAmount
	if record.InitiatedAt != nil {
		view["initiated_at"] = record.InitiatedAt.UTC().Format(time.RFC3339)
	}

	if record.State == swap.StateCompleted {
		view["settled"] = record.Settled
		view["settled_amount"] = record.SettledAmount
		if record.SettledAt != nil {
			view["settled_at"] = record.SettledAt.UTC().Format(time.RFC3339)
		}
	}

	return view
}
