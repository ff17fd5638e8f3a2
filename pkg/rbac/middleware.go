package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/httputil"
)

// Require returns middleware that runs op's permission check before the handler
func (g *Guard) Require(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Authorize(r.Context(), op); err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handle registers a guarded route. The router must already authenticate callers.
func (g *Guard) Handle(router *mux.Router, method, path string, op Operation, handler http.HandlerFunc) *mux.Route {
	return router.Handle(path, g.Require(op)(handler)).Methods(method)
}
