package monitoring

import "log"

// Logf receives the featuretrack run summaries: one line per frame plus
// the session totals. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger redirects Logf. Nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
