package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const localOrigin = "http://localhost:3000"

// CORS allows the web app origin (and local dev) to call the API with credentials.
func CORS(origins ...string) func(http.Handler) http.Handler {
	allowed := []string{localOrigin}
	for _, origin := range origins {
		if origin != "" && origin != localOrigin {
			allowed = append(allowed, origin)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
