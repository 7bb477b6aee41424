package api

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// httpStatusFromError maps a failed Store Service call to the gateway's
// response status and message.
func httpStatusFromError(err error) (int, string) {
	switch status.Code(err) {
	case codes.Unavailable:
		return http.StatusServiceUnavailable, "store unavailable"
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "store request timed out"
	default:
		return http.StatusBadGateway, "store request failed"
	}
}
