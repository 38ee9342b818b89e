package grpc

import (
	"errors"
	"regexp"
	"strings"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

var (
	errInvalidFullMethodName = errors.New("invalid full method name")

	// /<package>.<Service>/<Method>, where the package has at least one part
	fullMethodNamePattern = regexp.MustCompile(`^/(?:[a-zA-Z0-9]+\.)+[a-zA-Z0-9]+/[a-zA-Z0-9]+$`)
)

// ParseFullMethodName splits a gRPC full method name into its package, service
// and method
func ParseFullMethodName(fullMethodName string) (packageName, serviceName, methodName string, err error) {
	if !fullMethodNamePattern.MatchString(fullMethodName) {
		return "", "", "", errInvalidFullMethodName
	}

	qualifiedService, methodName, _ := strings.Cut(fullMethodName[1:], "/")

	dot := strings.LastIndexByte(qualifiedService, '.')
	return qualifiedService[:dot], qualifiedService[dot+1:], methodName, nil
}

// IsHealthCheckEndpoint reports whether a method is Check or Watch on the
// standard health service
func IsHealthCheckEndpoint(fullMethodName string) bool {
	if !strings.HasPrefix(fullMethodName, healthServicePrefix) {
		return false
	}
	method := fullMethodName[len(healthServicePrefix):]
	return method == "Check" || method == "Watch"
}

// ShouldLogCall skips successful health checks
func ShouldLogCall(fullMethodName string, err error) bool {
	return err != nil || !IsHealthCheckEndpoint(fullMethodName)
}
