package settlement

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"github.com/mizumi-finance/mizumi-server/pkg/config"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/auth"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/ledger"
	"github.com/mizumi-finance/mizumi-server/pkg/rate"
)

const (
	v1PathPrefix         = "/v1"
	v1RegisterUserPath   = v1PathPrefix + "/registerUser"
	v1OpenFirstSwapPath  = v1PathPrefix + "/openFirstSwap"
	v1OpenSwapPath       = v1PathPrefix + "/openSwap"
	v1InitiateSwapPath   = v1PathPrefix + "/initiateSwap"
	v1CompleteSwapPath   = v1PathPrefix + "/completeSwap"
	v1GetUserPath        = v1PathPrefix + "/getUser"
	v1GetSwapPath        = v1PathPrefix + "/getSwap"
	v1GetSwapHistoryPath = v1PathPrefix + "/getSwapHistory"

	contentTypeHeaderName      = "content-type"
	jsonContentTypeHeaderValue = "application/json"

	ownerSignatureHeaderName = "x-mizumi-owner-signature"
	adminKeyHeaderName       = "x-mizumi-admin-key"
	adminSignatureHeaderName = "x-mizumi-admin-signature"
)

type Server struct {
	log *logrus.Entry

	ledger          *ledger.Ledger
	adminPolicy     auth.AdminPolicy
	verifier        *auth.SignatureVerifier
	replayGuard     *auth.ReplayGuard
	trustedProxies  []*net.IPNet
	limiter         rate.Limiter
	writesDisabled  config.Bool
	metricsProvider *newrelic.Application
}

var writePaths = map[string]struct{}{
	v1RegisterUserPath:  {},
	v1OpenFirstSwapPath: {},
	v1OpenSwapPath:      {},
	v1InitiateSwapPath:  {},
	v1CompleteSwapPath:  {},
}

func NewSettlementServer(
	ledger *ledger.Ledger,
	adminPolicy auth.AdminPolicy,
	verifier *auth.SignatureVerifier,
	replayGuard *auth.ReplayGuard,
	limiter rate.Limiter,
	writesDisabled config.Bool,
	trustedProxies []*net.IPNet,
	metricsProvider *newrelic.Application,
) *Server {
	if limiter == nil {
		limiter = &rate.NoLimiter{}
	}

	return &Server{
		log:             logrus.StandardLogger().WithField("type", "settlement/server"),
		ledger:          ledger,
		adminPolicy:     adminPolicy,
		verifier:        verifier,
		replayGuard:     replayGuard,
		trustedProxies:  trustedProxies,
		limiter:         limiter,
		writesDisabled:  writesDisabled,
		metricsProvider: metricsProvider,
	}
}

// authenticate verifies the owner signature and, for admin gated requests,
// the admin signature and authorization. The request nonce is consumed only
// once every signature checks out.
func (s *Server) authenticate(ctx context.Context, req *signedRequest) error {
	if err := s.verifier.Authenticate(ctx, req.owner, req.message, req.ownerSignature); err != nil {
		return err
	}

	if req.admin != nil {
		if err := s.verifier.AuthenticateAdmin(ctx, s.adminPolicy, req.admin, req.message, req.adminSignature); err != nil {
			return err
		}
	}

	return s.replayGuard.Check(ctx, req.owner, req.nonce, req.timestamp)
}

func (s *Server) registerUserHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			var reqBody ownerRequestBody
			req, err := newSignedRequestFromHttpContext(r, path, &reqBody, func() string { return reqBody.Owner }, false)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithField("owner", req.owner.PublicKey().ToBase58())

			if err := s.authenticate(ctx, req); err != nil {
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			record, err := s.ledger.RegisterUser(ctx, req.owner)
			if err != nil {
				log.WithError(err).Warn("failure registering user")
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["user"] = toUserView(record)
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Info("failed to write body")
		}
	}
}

func (s *Server) openSwapHandler(path string, isFirst bool) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			var reqBody openSwapRequestBody
			req, err := newSignedRequestFromHttpContext(r, path, &reqBody, func() string { return reqBody.Owner }, true)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithFields(logrus.Fields{
				"owner":   req.owner.PublicKey().ToBase58(),
				"swap_id": reqBody.SwapId,
			})

			if err := s.authenticate(ctx, req); err != nil {
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			open := s.ledger.OpenSwap
			if isFirst {
				open = s.ledger.OpenFirstSwap
			}

			record, err := open(ctx, req.admin, req.owner, reqBody.SwapId)
			if err != nil {
				log.WithError(err).Warn("failure opening swap")
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["swap"] = toSwapView(record)
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Info("failed to write body")
		}
	}
}

func (s *Server) initiateSwapHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			var reqBody initiateSwapRequestBody
			req, err := newSignedRequestFromHttpContext(r, path, &reqBody, func() string { return reqBody.Owner }, true)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithFields(logrus.Fields{
				"owner":   req.owner.PublicKey().ToBase58(),
				"swap_id": reqBody.SwapId,
			})

			stablecoin, err := common.ParseStablecoin(reqBody.Stablecoin)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			fiat, err := common.ParseFiat(reqBody.Fiat)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			direction, err := common.ParseDirection(reqBody.Direction)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}

			if err := s.authenticate(ctx, req); err != nil {
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			record, err := s.ledger.Initiate(ctx, req.admin, req.owner, reqBody.SwapId, stablecoin, reqBody.Amount, fiat, direction)
			if err != nil {
				log.WithError(err).Warn("failure initiating swap")
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["swap"] = toSwapView(record)
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Info("failed to write body")
		}
	}
}

func (s *Server) completeSwapHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodPost {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http post expected"))
			}

			var reqBody completeSwapRequestBody
			req, err := newSignedRequestFromHttpContext(r, path, &reqBody, func() string { return reqBody.Owner }, true)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithFields(logrus.Fields{
				"owner":   req.owner.PublicKey().ToBase58(),
				"swap_id": reqBody.SwapId,
			})

			if err := s.authenticate(ctx, req); err != nil {
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			record, err := s.ledger.Complete(ctx, req.admin, req.owner, reqBody.SwapId, reqBody.Settled, reqBody.SettledAmount)
			if err != nil {
				log.WithError(err).Warn("failure completing swap")
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["swap"] = toSwapView(record)
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Info("failed to write body")
		}
	}
}

func (s *Server) getUserHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			owner, err := ownerFromQuery(r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithField("owner", owner.PublicKey().ToBase58())

			record, err := s.ledger.GetUser(ctx, owner)
			if err != nil {
				if err != ledger.ErrNotFound {
					log.WithError(err).Warn("failure getting user")
				}
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["user"] = toUserView(record)
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Warn("failed to write body")
		}
	}
}

func (s *Server) getSwapHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			owner, err := ownerFromQuery(r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}

			swapIdQueryParam := r.URL.Query()["swap_id"]
			if len(swapIdQueryParam) < 1 {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("swap_id query parameter missing"))
			}
			log = log.WithFields(logrus.Fields{
				"owner":   owner.PublicKey().ToBase58(),
				"swap_id": swapIdQueryParam[0],
			})

			record, err := s.ledger.GetSwap(ctx, owner, swapIdQueryParam[0])
			if err != nil {
				if err != ledger.ErrNotFound {
					log.WithError(err).Warn("failure getting swap")
				}
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["swap"] = toSwapView(record)
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Warn("failed to write body")
		}
	}
}

func (s *Server) getSwapHistoryHandler(path string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithFields(logrus.Fields{
			"path":       path,
			"request_id": getRequestId(r.Context()),
		})

		statusCode, body := func() (int, GenericApiResponseBody) {
			ctx := r.Context()

			if r.Method != http.MethodGet {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(errors.New("http get expected"))
			}

			owner, err := ownerFromQuery(r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}
			log = log.WithField("owner", owner.PublicKey().ToBase58())

			opts, err := queryOptionsFromQuery(r)
			if err != nil {
				return http.StatusBadRequest, NewGenericApiFailureResponseBody(err)
			}

			records, err := s.ledger.GetSwaps(ctx, owner, opts...)
			if err != nil {
				log.WithError(err).Warn("failure getting swap history")
				statusCode, err := HandleLedgerErrorInWebContext(err)
				return statusCode, NewGenericApiFailureResponseBody(err)
			}

			views := make([]map[string]any, len(records))
			for i, record := range records {
				views[i] = toSwapView(record)
			}

			respBody := NewGenericApiSuccessResponseBody()
			respBody["swaps"] = views
			if len(records) > 0 {
				respBody["cursor"] = cursorFor(records[len(records)-1])
			}
			return http.StatusOK, respBody
		}()

		if err := writeResponse(w, statusCode, body); err != nil {
			log.WithError(err).Warn("failed to write body")
		}
	}
}

func (s *Server) GetHandlers() map[string]http.HandlerFunc {
	handlers := map[string]http.HandlerFunc{
		v1RegisterUserPath:   s.registerUserHandler(v1RegisterUserPath),
		v1OpenFirstSwapPath:  s.openSwapHandler(v1OpenFirstSwapPath, true),
		v1OpenSwapPath:       s.openSwapHandler(v1OpenSwapPath, false),
		v1InitiateSwapPath:   s.initiateSwapHandler(v1InitiateSwapPath),
		v1CompleteSwapPath:   s.completeSwapHandler(v1CompleteSwapPath),
		v1GetUserPath:        s.getUserHandler(v1GetUserPath),
		v1GetSwapPath:        s.getSwapHandler(v1GetSwapPath),
		v1GetSwapHistoryPath: s.getSwapHistoryHandler(v1GetSwapHistoryPath),
	}

	for path, handler := range handlers {
		handlers[path] = s.withMiddleware(path, handler)
	}
	return handlers
}
