package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes wires the customer-facing API.
func RegisterRoutes(h *Handler, r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	r.HandleFunc("/api/events/ws", h.EventsWebSocket)
	r.HandleFunc("/api/events/ping", h.EventsPing).Methods("GET")

	r.HandleFunc("/api/profiles", h.CreateProfile).Methods("POST")
	r.HandleFunc("/api/profiles/{id}", h.GetProfile).Methods("GET")
	r.HandleFunc("/api/subscriptions/user/{userId}", h.GetUserSubscription).Methods("GET")

	r.HandleFunc("/api/brands", h.CreateBrand).Methods("POST")
	r.HandleFunc("/api/brands", h.ListBrandsForUser).Methods("GET")
	r.HandleFunc("/api/brands/{id}", h.UpdateBrand).Methods("PUT")
	r.HandleFunc("/api/brands/{id}", h.DeleteBrand).Methods("DELETE")
	r.HandleFunc("/api/brands/{id}/logo", h.UploadBrandLogo).Methods("POST")
	r.HandleFunc("/api/brand-assets/brand/{brandId}", h.UploadBrandAsset).Methods("POST")
	r.HandleFunc("/api/brand-assets/brand/{brandId}", h.ListBrandAssets).Methods("GET")
	r.HandleFunc("/api/brand-assets/{id}", h.DeleteBrandAsset).Methods("DELETE")

	r.HandleFunc("/api/ad-ideas/brand/{brandId}", h.CreateAdIdea).Methods("POST")
	r.HandleFunc("/api/ad-ideas/brand/{brandId}", h.ListAdIdeasForBrand).Methods("GET")

	r.HandleFunc("/api/trial-requests/brand/{brandId}", h.CreateTrialRequest).Methods("POST")
	r.HandleFunc("/api/trial-requests/{id}/delivered", h.MarkTrialRequestDelivered).Methods("POST")

	r.HandleFunc("/api/downloads/user/{userId}", h.ListDownloadsForUser).Methods("GET")
	r.HandleFunc("/api/downloads/{id}", h.DeleteDownload).Methods("DELETE")

	r.HandleFunc("/api/chat/sessions", h.CreateChatSession).Methods("POST")
	r.HandleFunc("/api/chat/sessions/{id}/messages", h.ListChatMessages).Methods("GET")
	r.HandleFunc("/api/chat/sessions/{id}/messages", h.SendChatMessage).Methods("POST")
}

// RegisterAdminRoutes wires the fulfillment and chat consoles behind the
// admin entitlement gate.
func RegisterAdminRoutes(h *Handler, r *mux.Router, gate func(http.Handler) http.Handler) {
	admin := r.PathPrefix("/api/admin").Subrouter()
	if gate != nil {
		admin.Use(gate)
	}

	admin.HandleFunc("/trial-requests", h.ListPendingTrialRequests).Methods("GET")
	admin.HandleFunc("/trial-requests/{id}/fulfill", h.FulfillTrialRequest).Methods("POST")

	admin.HandleFunc("/chat/sessions", h.ListChatSessions).Methods("GET")
	admin.HandleFunc("/chat/sessions/{id}/messages", h.SendAgentChatMessage).Methods("POST")
	admin.HandleFunc("/chat/sessions/{id}/messages", h.ListChatMessages).Methods("GET")
	admin.HandleFunc("/chat/sessions/{id}/close", h.CloseChatSession).Methods("POST")
}
