package routers

import (
	"wave-portal/handlers"
	"wave-portal/metrics"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes for the wave portal
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {
	r.Use(metrics.Middleware)

	// Full view state: account, count, feed, submission status
	r.HandleFunc("/state", h.GetState).Methods("GET")

	// Live view state over a websocket
	r.HandleFunc("/ws", h.Stream).Methods("GET")

	// Asks the wallet provider for account access
	r.HandleFunc("/connect", h.Connect).Methods("POST")

	r.HandleFunc("/draft", h.SetDraft).Methods("PUT")

	r.HandleFunc("/waves", h.GetWaves).Methods("GET")
	r.HandleFunc("/waves/count", h.GetWaveCount).Methods("GET")

	// Submits a wave and waits for it to be mined
	r.HandleFunc("/waves", h.SubmitWave).Methods("POST")

	r.HandleFunc("/alerts/{id}", h.DismissAlert).Methods("DELETE")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
}
