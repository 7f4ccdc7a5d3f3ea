// Package metrics exposes the prometheus metrics of the process over http.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/enfabrica/nucleus/lib/stamp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

var (
	metricBuildInfo = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nucleus",
		Subsystem: "bin",
		Name:      "build_info",
		Help:      "Info on when/where/how this binary was generated",
		ConstLabels: prometheus.Labels(map[string]string{
			"build_user": stamp.BuildUser,
			"git_branch": stamp.GitBranch,
			"git_sha":    stamp.GitSha,
			"is_clean":   strconv.FormatBool(stamp.IsClean()),
		}),
	})

	metricStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nucleus",
		Subsystem: "runtime",
		Name:      "start_time",
		Help:      "When this instance started",
	})
)

// NewServer returns an http.Server exposing the metrics on endpoint.
//
// Cross origin requests are allowed, so dashboards served elsewhere can
// poll the metrics from a browser.
func NewServer(hostPort string, endpoint string) *http.Server {
	mux := http.NewServeMux()
	AddHandler(mux, endpoint)
	return &http.Server{Addr: hostPort, Handler: cors.Default().Handler(mux)}
}

// AddHandler exposes the metrics on endpoint of mux.
func AddHandler(mux *http.ServeMux, endpoint string) {
	metricBuildInfo.Set(1)
	metricStartTime.SetToCurrentTime()

	mux.Handle(endpoint, promhttp.Handler())
}
