package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanicWithCallback recovers a panic, logs it with its stack, then runs callback.
// It must be deferred directly:
//
//	defer observability.RecoverPanicWithCallback(logger, "GET /documents", func() {
//	    httputil.WriteInternalError(w)
//	})
//
// The panic is not re-raised.
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
		if callback != nil {
			callback()
		}
	}
}
