package kserver

import (
	"errors"
	"strconv"

	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "connections_total",
		Help:      "Total number of connections accepted",
	})
	metricActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "connections_active",
		Help:      "Number of connections being served",
	})
	metricAcceptErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "accept_errors_total",
		Help:      "Temporary errors returned by the listener, causing accept to be retried",
	})
	metricHandshakeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "tls_handshake_errors_total",
		Help:      "Connections closed because the TLS handshake failed",
	})
	metricParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "parse_errors_total",
		Help:      "Malformed requests received, by reason",
	},
		[]string{
			"reason",
		},
	)
	metricResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "responses_total",
		Help:      "Responses sent, by request method and response code",
	},
		[]string{
			"method",
			"response_code",
		},
	)
	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nucleus",
		Subsystem: "server",
		Name:      "request_duration_seconds",
		Help:      "Time to compute the response to a request",
	},
		[]string{
			"method",
		},
	)
)

func statusLabel(status kresponse.Status) string {
	return strconv.Itoa(int(status))
}

// errorLabel maps a parse error to a label with bounded cardinality.
func errorLabel(err error) string {
	for _, known := range []struct {
		err   error
		label string
	}{
		{krequest.ErrInvalidString, "invalid_string"},
		{krequest.ErrInvalidMethod, "invalid_method"},
		{krequest.ErrInvalidHTTPVersion, "invalid_http_version"},
		{krequest.ErrNoHostHeader, "no_host_header"},
		{krequest.ErrInvalidContentLength, "invalid_content_length"},
		{krequest.ErrMissingContentLength, "missing_content_length"},
		{krequest.ErrMissingMultiPartBoundary, "missing_multipart_boundary"},
		{krequest.ErrInvalidUrlEncodedForm, "invalid_url_encoded_form"},
		{krequest.ErrBodyExceedsContentLength, "body_exceeds_content_length"},
		{krequest.ErrHeaderTooLarge, "header_too_large"},
		{krequest.ErrBodyTooLarge, "body_too_large"},
	} {
		if errors.Is(err, known.err) {
			return known.label
		}
	}
	return "other"
}
