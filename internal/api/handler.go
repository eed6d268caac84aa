package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/ardeus-ua/ha-addons/internal/models"
	"github.com/ardeus-ua/ha-addons/internal/registry"
	"github.com/ardeus-ua/ha-addons/internal/services"
	"github.com/ardeus-ua/ha-addons/internal/store"
)

const maxBodyBytes = 1 << 20

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Ingester applies a batch of SOC updates
type Ingester interface {
	Ingest(ctx context.Context, batch *models.Batch) (services.Result, error)
}

// Snapshotter provides the current readings
type Snapshotter interface {
	Snapshot() models.Readings
}

// Handler holds the HTTP endpoints
type Handler struct {
	ingester Ingester
	store    Snapshotter
	registry *registry.Registry
	ws       http.Handler
}

// NewHandler creates the handler; ws serves /ws and may be nil
func NewHandler(ingester Ingester, store Snapshotter, reg *registry.Registry, ws http.Handler) *Handler {
	return &Handler{
		ingester: ingester,
		store:    store,
		registry: reg,
		ws:       ws,
	}
}

// Routes returns the router wrapped in request logging and panic recovery
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/api/battery_soc", h.handleBatterySOC)
	mux.HandleFunc("/healthz", h.handleHealth)
	if h.ws != nil {
		mux.Handle("/ws", h.ws)
	}
	return withRequestID(withRecovery(mux))
}

func (h *Handler) handleBatterySOC(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ingest(w, r)
	case http.MethodGet, http.MethodHead:
		writeJSON(w, http.StatusOK, h.store.Snapshot())
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	updates, err := services.DecodeBatch(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.ingester.Ingest(r.Context(), &models.Batch{Source: "http", Updates: updates})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Status: "ok", Result: result})
}

// fail maps ingestion errors onto the error envelope
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("API: %s %s [%s]: %v", r.Method, r.URL.Path, requestID(r.Context()), err)

	var (
		tooLarge *http.MaxBytesError
		parseErr *services.ParseError
		storeErr *store.PersistenceError
	)
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &parseErr), errors.As(err, &storeErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	page := buildPage(h.registry.Sensors(), h.store.Snapshot())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		log.Printf("API: Error rendering index: %v", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type okResponse struct {
	Status string `json:"status"`
	services.Result
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: Error writing response: %v", err)
	}
}
