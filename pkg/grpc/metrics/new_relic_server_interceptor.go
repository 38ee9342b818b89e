package metrics

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	grpc_core "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/mizumi-finance/mizumi-server/pkg/grpc"
	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
)

const (
	attrRequestPackage = "grpc.request.package"
	attrRequestService = "grpc.request.service"
	attrRequestMethod  = "grpc.request.method"
	attrUserAgent      = "grpc.client.userAgent"

	attrStatusCode    = "grpc.response.statusCode"
	attrStatusMessage = "grpc.response.statusMessage"
	attrStatusLevel   = "grpc.response.statusCodeLevel"
)

type statusLevel string

const (
	levelInfo    statusLevel = "info"
	levelWarning statusLevel = "warning"
	levelError   statusLevel = "error"
)

// forwardedHeaders are copied from incoming metadata onto the traced request
var forwardedHeaders = []string{":authority", "user-agent", "content-type"}

// levelOf classifies a status code. Only error level codes are reported to
// New Relic as errors.
func levelOf(code codes.Code) statusLevel {
	switch code {
	case codes.OK,
		codes.AlreadyExists,
		codes.Canceled,
		codes.InvalidArgument,
		codes.NotFound,
		codes.Unauthenticated:
		return levelInfo
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.FailedPrecondition,
		codes.OutOfRange,
		codes.PermissionDenied,
		codes.ResourceExhausted,
		codes.Unavailable:
		return levelWarning
	default:
		return levelError
	}
}

// NewRelicUnaryServerInterceptor records each unary call as a New Relic
// transaction. Health checks are skipped.
func NewRelicUnaryServerInterceptor(app *newrelic.Application) grpc_core.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc_core.UnaryServerInfo, handler grpc_core.UnaryHandler) (interface{}, error) {
		if app == nil || grpc.IsHealthCheckEndpoint(info.FullMethod) {
			return handler(ctx, req)
		}

		ctx, txn := beginTransaction(ctx, app, info.FullMethod)
		defer txn.End()

		resp, err := handler(ctx, req)
		recordStatus(txn, err)
		return resp, err
	}
}

// NewRelicStreamServerInterceptor records each stream as a New Relic
// transaction
func NewRelicStreamServerInterceptor(app *newrelic.Application) grpc_core.StreamServerInterceptor {
	return func(srv interface{}, ss grpc_core.ServerStream, info *grpc_core.StreamServerInfo, handler grpc_core.StreamHandler) error {
		if app == nil {
			return handler(srv, ss)
		}

		ctx, txn := beginTransaction(ss.Context(), app, info.FullMethod)
		defer txn.End()

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		recordStatus(txn, err)
		return err
	}
}

type tracedStream struct {
	grpc_core.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context {
	return s.ctx
}

// beginTransaction starts a transaction for fullMethod and returns a context
// carrying both the application and the transaction
func beginTransaction(ctx context.Context, app *newrelic.Application, fullMethod string) (context.Context, *newrelic.Transaction) {
	name := strings.TrimPrefix(fullMethod, "/")

	header := make(http.Header)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, key := range forwardedHeaders {
			for _, value := range md.Get(key) {
				header.Add(key, value)
			}
		}
	}

	txn := app.StartTransaction(name)
	txn.SetWebRequest(newrelic.WebRequest{
		Header:    header,
		URL:       targetURL(name, header.Get(":authority")),
		Method:    name,
		Transport: newrelic.TransportHTTP,
	})

	if userAgent := header.Get("user-agent"); len(userAgent) > 0 {
		txn.AddAttribute(attrUserAgent, userAgent)
	}

	if pkg, service, method, err := grpc.ParseFullMethodName(fullMethod); err == nil {
		txn.AddAttribute(attrRequestPackage, pkg)
		txn.AddAttribute(attrRequestService, service)
		txn.AddAttribute(attrRequestMethod, method)
	}

	ctx = metrics.WithApplication(ctx, app)
	return newrelic.NewContext(ctx, txn), txn
}

func targetURL(path, authority string) *url.URL {
	host := strings.TrimPrefix(authority, "dns:///")
	if strings.HasPrefix(authority, "unix:") {
		host = "localhost"
	}
	return &url.URL{Scheme: "grpc", Host: host, Path: path}
}

func recordStatus(txn *newrelic.Transaction, err error) {
	s := status.Convert(err)
	level := levelOf(s.Code())

	// gRPC errors travel in trailers, so the HTTP status is always 200
	txn.SetWebResponse(nil).WriteHeader(http.StatusOK)
	txn.AddAttribute(attrStatusCode, s.Code().String())
	txn.AddAttribute(attrStatusMessage, s.Message())
	txn.AddAttribute(attrStatusLevel, string(level))

	if level == levelError {
		txn.NoticeError(&newrelic.Error{
			Message: s.Message(),
			Class:   "gRPC Status: " + s.Code().String(),
		})
	}
}
