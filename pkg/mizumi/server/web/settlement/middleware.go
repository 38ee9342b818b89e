package settlement

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"

	"github.com/mizumi-finance/mizumi-server/pkg/metrics"
)

const (
	requestIdHeaderName    = "x-request-id"
	forwardedForHeaderName = "x-forwarded-for"
)

type requestIdContextKey struct{}

func getRequestId(ctx context.Context) string {
	requestId, _ := ctx.Value(requestIdContextKey{}).(string)
	return requestId
}

// withMiddleware wraps a handler with request ids, New Relic transactions, per
// client rate limiting and the write kill switch
func (s *Server) withMiddleware(path string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestId := uuid.New().String()
		w.Header().Set(requestIdHeaderName, requestId)

		ctx := context.WithValue(r.Context(), requestIdContextKey{}, requestId)

		if s.metricsProvider != nil {
			txn := s.metricsProvider.StartTransaction(path)
			defer txn.End()

			txn.SetWebRequestHTTP(r)
			txn.AddAttribute("request_id", requestId)
			w = txn.SetWebResponse(w)

			ctx = newrelic.NewContext(ctx, txn)
			ctx = metrics.WithApplication(ctx, s.metricsProvider)
		}

		r = r.WithContext(ctx)

		allowed, err := s.limiter.Allow(clientKey(r, s.trustedProxies))
		if err != nil {
			s.log.WithError(err).WithField("path", path).Warn("failure checking rate limit")
		} else if !allowed {
			if err := writeResponse(w, http.StatusTooManyRequests, NewGenericApiFailureResponseBody(errRateLimited)); err != nil {
				s.log.WithError(err).Info("failed to write body")
			}
			return
		}

		if _, isWrite := writePaths[path]; isWrite && s.writesDisabled != nil && s.writesDisabled.Get(ctx) {
			if err := writeResponse(w, http.StatusServiceUnavailable, NewGenericApiFailureResponseBody(errWritesDisabled)); err != nil {
				s.log.WithError(err).Info("failed to write body")
			}
			return
		}

		handler(w, r)
	}
}

// clientKey identifies the caller for rate limiting. The forwarded for header
// is only honored on connections from a trusted proxy, where the right most
// hop that isn't itself a trusted proxy is the client.
func clientKey(r *http.Request, trustedProxies []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if !isTrustedProxy(host, trustedProxies) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values(forwardedForHeaderName), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if len(hop) == 0 || isTrustedProxy(hop, trustedProxies) {
			continue
		}
		return hop
	}
	return host
}

func isTrustedProxy(address string, trustedProxies []*net.IPNet) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}

	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies parses CIDR ranges and single IP addresses
func ParseTrustedProxies(values []string) ([]*net.IPNet, error) {
	var res []*net.IPNet
	for _, value := range values {
		value = strings.TrimSpace(value)
		if len(value) == 0 {
			continue
		}

		if !strings.Contains(value, "/") {
			ip := net.ParseIP(value)
			if ip == nil {
				return nil, errors.Errorf("invalid trusted proxy address: %s", value)
			}

			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 8 * net.IPv4len
			}
			res = append(res, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}

		_, network, err := net.ParseCIDR(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trusted proxy range: %s", value)
		}
		res = append(res, network)
	}
	return res, nil
}
