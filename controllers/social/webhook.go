package social

import (
	"log"
	"net/http"
)

// HandleWebhook отвечает на verification handshake Instagram.
// GET с hub.challenge подтверждает подписку, POST-доставки просто
// подтверждаются — обработка событий сюда не входит.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")

		if mode == "" || token == "" {
			log.Println("Missing webhook parameters.")
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if mode != "subscribe" || token != h.cfg.WebhookVerifyToken {
			log.Println("Failed webhook validation. Make sure the validation tokens match.")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		log.Println("WEBHOOK_VERIFIED")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
	case http.MethodPost:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("EVENT_RECEIVED"))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
