package metrics

import (
	"time"

	obserrors "github.com/peopleops/hrportal/internal/observability/errors"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultAnonymous = "anonymous"
	ResultFallback  = "fallback"
	ResultDiscarded = "discarded"
)

// Metric names shared by every sink.
const (
	NameResolution         = "session.resolution"
	NameResolutionDuration = "session.resolution.duration"
	NameLogin              = "auth.login"
	NameLogout             = "auth.logout"
	NameLaunch             = "sso.launch"
	NameExchangeDuration   = "sso.exchange.duration"
	NameDirectoryRefresh   = "sso.directory.refresh"
	NameDirectorySize      = "sso.directory.size"
	NameHTTPRequest        = "http.request"
)

// ResolutionMetric describes one session resolution.
type ResolutionMetric struct {
	// Result is ResultSuccess, ResultAnonymous or ResultDiscarded.
	Result   string
	Reason   string
	Duration time.Duration
	Err      error
}

// EmitResolution records the outcome of a whoami call.
func EmitResolution(sink Sink, in ResolutionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(NameResolution, 1, tags)
	if in.Duration > 0 {
		sink.Timing(NameResolutionDuration, in.Duration, map[string]string{"result": in.Result})
	}
}

// EmitLogin records a login attempt by method (password, oauth, mock).
func EmitLogin(sink Sink, method string, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sink.Count(NameLogin, 1, map[string]string{"method": method, "result": result})
}

// EmitLogout records a logout.
func EmitLogout(sink Sink) {
	if sink == nil {
		return
	}
	sink.Count(NameLogout, 1, nil)
}

// LaunchMetric describes one application launch.
type LaunchMetric struct {
	Application string
	// Result is ResultSuccess or ResultFallback.
	Result   string
	Exchange time.Duration
	Err      error
}

// EmitLaunch records an SSO launch and, when a token exchange happened, its latency.
func EmitLaunch(sink Sink, in LaunchMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"application": in.Application,
		"result":      in.Result,
	}
	if in.Err != nil && in.Result == ResultFallback {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count(NameLaunch, 1, tags)

	if in.Exchange > 0 {
		sink.Timing(NameExchangeDuration, in.Exchange, map[string]string{"application": in.Application})
	}
}

// EmitDirectoryRefresh records a directory refresh and the resulting cache size.
func EmitDirectoryRefresh(sink Sink, size int, err error) {
	if sink == nil {
		return
	}
	if err != nil {
		sink.Count(NameDirectoryRefresh, 1, map[string]string{
			"result":      ResultError,
			"error_class": obserrors.Classify(err),
		})
		return
	}
	sink.Count(NameDirectoryRefresh, 1, map[string]string{"result": ResultSuccess})
	sink.Gauge(NameDirectorySize, float64(size), nil)
}

// EmitHTTPRequest records a served request.
func EmitHTTPRequest(sink Sink, method, route string, status int, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"method": method,
		"route":  route,
		"status": statusClass(status),
	}
	sink.Timing(NameHTTPRequest, d, tags)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
