package servers

import (
	"net/http"
	"time"

	applog "github.com/bililive-go/docstore/src/log"
	"github.com/sirupsen/logrus"
)

func log(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		applog.WithFields(logrus.Fields{
			"Method":     r.Method,
			"Path":       r.RequestURI,
			"RemoteAddr": r.RemoteAddr,
			"Elapsed":    time.Since(start).String(),
		}).Debug("Http Request")
	})
}
