package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/logging"
)

// WhatsAppVerifyHandler answers the webhook subscription handshake for a
// tenant by echoing hub.challenge when hub.verify_token matches.
func WhatsAppVerifyHandler(employees *db.EmployeeStore, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := chi.URLParam(r, "companyID")
		q := r.URL.Query()

		cfg, err := employees.GetMessagingConfig(r.Context(), companyID, models.ChannelWhatsApp)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				http.Error(w, "Unknown tenant", http.StatusNotFound)
				return
			}
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		token := q.Get("hub.verify_token")
		if q.Get("hub.mode") != "subscribe" || token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(cfg.VerifyToken)) != 1 {
			logger.WithContext(r.Context()).Warn().Str("company_id", companyID).Msg("webhook verification rejected")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
	}
}

type whatsAppEvent struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Statuses []whatsAppStatus `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsAppStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

func (s whatsAppStatus) at() time.Time {
	if sec, err := strconv.ParseInt(s.Timestamp, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	return time.Now().UTC()
}

// WhatsAppEventsHandler ingests delivery status events and advances the
// matching communication logs.
func WhatsAppEventsHandler(employees *db.EmployeeStore, logs *db.LogStore, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := chi.URLParam(r, "companyID")
		log := logger.WithContext(r.Context())

		if _, err := employees.GetMessagingConfig(r.Context(), companyID, models.ChannelWhatsApp); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, http.StatusNotFound, "unknown tenant")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var event whatsAppEvent
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&event); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event payload")
			return
		}

		var received, applied int
		for _, entry := range event.Entry {
			for _, change := range entry.Changes {
				for _, st := range change.Value.Statuses {
					received++
					status := models.MessageStatus(st.Status)
					if st.ID == "" || (status.Rank() == 0 && status != models.StatusFailed) {
						continue
					}
					changed, err := logs.ApplyStatus(r.Context(), st.ID, status, st.at())
					if err != nil {
						log.Error().Err(err).Str("message_id", st.ID).Msg("failed to apply status")
						writeError(w, http.StatusInternalServerError, "failed to apply status")
						return
					}
					if changed {
						applied++
					}
				}
			}
		}

		log.Debug().Str("company_id", companyID).Int("received", received).Int("applied", applied).Msg("whatsapp statuses processed")
		writeJSON(w, http.StatusOK, map[string]int{"received": received, "applied": applied})
	}
}
