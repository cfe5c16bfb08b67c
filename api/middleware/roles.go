package middleware

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-ads/api/responses"
	"github.com/angelmondragon/packfinderz-ads/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-ads/pkg/errors"
	"github.com/angelmondragon/packfinderz-ads/pkg/logger"
)

// RequireBudgetManager blocks money-moving routes for members whose role
// cannot manage budgets. Analysts keep read access through the normal
// authed routes.
func RequireBudgetManager(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := enums.MemberRole(RoleFromContext(r.Context()))
			if !role.CanManageBudgets() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "budget management role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
