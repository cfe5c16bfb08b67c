package controllers

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-ads/api/middleware"
	"github.com/angelmondragon/packfinderz-ads/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if business := middleware.BusinessIDFromContext(r.Context()); business != "" {
			payload["business_id"] = business
		}
		responses.WriteSuccess(w, payload)
	}
}
