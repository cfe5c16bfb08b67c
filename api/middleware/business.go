package middleware

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-ads/api/responses"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

// BusinessContext rejects requests whose token does not carry an active business.
func BusinessContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if BusinessIDFromContext(r.Context()) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "business context missing"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
