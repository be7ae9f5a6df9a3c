package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bradykim7/dentscraper/internal/crawler"
	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/bradykim7/dentscraper/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Scraper runs one scrape and reports statistics for the last run
type Scraper interface {
	Run(ctx context.Context, params models.ScrapeParameters) (int, error)
	Stats() crawler.RunStats
	MaxPageLimit() int
}

// Handler exposes the scrape trigger and the notification preference
type Handler struct {
	scraper     Scraper
	prefs       storage.PreferenceStore
	defaultPref models.NotificationPreference
	log         *zap.Logger
}

// NewHandler builds the routed API. Every /api/ route requires token as a bearer token.
func NewHandler(scraper Scraper, prefs storage.PreferenceStore, defaultPref models.NotificationPreference, token string, log *zap.Logger) http.Handler {
	h := &Handler{
		scraper:     scraper,
		prefs:       prefs,
		defaultPref: defaultPref,
		log:         log.Named("api"),
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/scrape", h.PostScrape)
	api.HandleFunc("GET /api/scrape/stats", h.GetStats)
	api.HandleFunc("GET /api/notification/config", h.GetNotificationConfig)
	api.HandleFunc("POST /api/notification/config", h.PostNotificationConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.GetRoot)
	mux.HandleFunc("GET /healthz", h.GetHealth)
	mux.Handle("/api/", bearerAuth(token, h.log, api))

	return mux
}

type scrapeResponse struct {
	Message      string `json:"message"`
	ChangedCount int    `json:"changed_count"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type notificationConfig struct {
	NotificationType string   `json:"notification_type"`
	Recipients       []string `json:"recipients"`
}

func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Welcome to DentScraper API"})
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PostScrape runs a scrape with the posted parameters and reports the changed count
func (h *Handler) PostScrape(w http.ResponseWriter, r *http.Request) {
	var params models.ScrapeParameters
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := params.ValidateLimit(h.scraper.MaxPageLimit()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.scraper.Run(r.Context(), params)
	if err != nil {
		if isInvalidParams(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("Scrape failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Scrape failed")
		return
	}

	h.writeJSON(w, http.StatusOK, scrapeResponse{
		Message:      fmt.Sprintf("Scraped and updated %d products", count),
		ChangedCount: count,
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scraper.Stats())
}

// GetNotificationConfig returns the stored preference, or the default when none is stored
func (h *Handler) GetNotificationConfig(w http.ResponseWriter, r *http.Request) {
	pref := storage.ResolvePreference(r.Context(), h.prefs, h.defaultPref, h.log)
	h.writeJSON(w, http.StatusOK, toNotificationConfig(pref))
}

// PostNotificationConfig replaces the stored preference
func (h *Handler) PostNotificationConfig(w http.ResponseWriter, r *http.Request) {
	var body notificationConfig
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	channel, err := models.ParseNotificationChannel(body.NotificationType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recipients := body.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	pref := models.NotificationPreference{Channel: channel, Recipients: recipients}
	if err := pref.ValidateRecipients(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.prefs.Upsert(r.Context(), pref); err != nil {
		h.log.Error("Failed to update notification config", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update notification configuration")
		return
	}

	h.log.Info("Notification configuration updated",
		zap.String("notification_type", string(channel)),
		zap.Int("recipients", len(recipients)))
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Notification configuration updated successfully"})
}

func isInvalidParams(err error) bool {
	return errors.Is(err, models.ErrInvalidPageLimit) ||
		errors.Is(err, models.ErrPageLimitTooLarge) ||
		errors.Is(err, models.ErrInvalidProxy)
}

func toNotificationConfig(pref models.NotificationPreference) notificationConfig {
	recipients := pref.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	return notificationConfig{
		NotificationType: string(pref.Channel),
		Recipients:       recipients,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response body", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}
