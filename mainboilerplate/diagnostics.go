package mainboilerplate

import (
	_ "expvar" // Import for /debug/vars
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // Import for /debug/pprof
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// DiagnosticsConfig configures pull-based application metrics, debugging and diagnostics.
type DiagnosticsConfig struct {
	Address string `long:"address" env:"ADDRESS" description:"Address at which to serve diagnostics, eg 'localhost:8080'. Diagnostics are not served if empty"`
}

// InitDiagnosticsAndRecover enables serving of metrics and debugging services
// registered on the default HTTPMux. It also returns a closure which should be
// deferred, which recovers a panic and attempts to log a termination message.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	// Package "net/http/pprof" serves /debug/pprof/.
	// Package "expvar" serves /debug/vars

	registerHandlers.Do(func() {
		// Serve a liveness check at /debug/ready.
		http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		// Serve Prometheus metrics at /debug/metrics.
		http.Handle("/debug/metrics", promhttp.Handler())
	})

	if cfg.Address != "" {
		var ln, err = net.Listen("tcp", cfg.Address)
		Must(err, "failed to bind diagnostics address", "address", cfg.Address)

		log.WithField("address", ln.Addr().String()).Info("serving diagnostics")
		go func() { _ = http.Serve(ln, nil) }()
	}

	return func() {
		if r := recover(); r != nil {
			// Make a best effort attempt to write a termination message.
			if f, err := os.OpenFile(terminationLog, os.O_WRONLY, 0777); err == nil {
				fmt.Fprintf(f, "%+v", r)
				f.Close()
			}
			panic(r)
		}
	}
}

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}

var (
	// terminationLog is the location of a termination message which is read by
	// container runtimes on exit.
	terminationLog = "/dev/termination-log"
	// DefaultServeMux panics on duplicate registrations.
	registerHandlers sync.Once
)
