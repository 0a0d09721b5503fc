// Package errors provides the router's fallback handlers.
package errors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"slotbook/lib/api/response"
	"slotbook/lib/sl"
)

func NotFound(log *slog.Logger) http.HandlerFunc {
	mod := sl.Module("http.handlers.errors")
	return func(w http.ResponseWriter, r *http.Request) {
		log.With(mod, slog.String("path", r.URL.Path)).Debug("unknown route")
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("Requested resource not found"))
	}
}

func NotAllowed(log *slog.Logger) http.HandlerFunc {
	mod := sl.Module("http.handlers.errors")
	return func(w http.ResponseWriter, r *http.Request) {
		log.With(mod, slog.String("path", r.URL.Path), slog.String("method", r.Method)).Debug("method not allowed")
		render.Status(r, http.StatusMethodNotAllowed)
		render.JSON(w, r, response.Error("Method not allowed"))
	}
}
