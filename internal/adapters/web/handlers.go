package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"contract-ledger/internal/app"
	"contract-ledger/internal/core"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc app.ApplicationService
	log *slog.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log *slog.Logger, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(RequestBodyLimit(maxRequestBody))
	if origins := splitAndTrim(allowedOrigins); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Request-ID", "X-Tenant-ID", "X-Legal-Entity-ID", "X-Actor-ID"},
			AllowCredentials: true,
		}))
	}

	r.Get("/api/health", h.health)

	r.Route("/api/contracts", func(r chi.Router) {
		r.Post("/", h.createContract)
		r.Get("/{id}", h.getContract)
		r.Put("/{id}", h.updateContract)
		r.Post("/{id}/amendments", h.amendContract)
		r.Patch("/{id}/lines/{lineID}", h.patchContractLine)
		r.Post("/{id}/transitions/{action}", h.transitionContract)
		r.Get("/{id}/links", h.listContractLinks)
		r.Get("/{id}/rollup", h.getRollup)
		r.Post("/{id}/billing", h.generateBilling)
		r.Post("/{id}/recognition", h.triggerRecognition)
	})

	r.Route("/api/links", func(r chi.Router) {
		r.Post("/", h.createLink)
		r.Get("/{id}", h.getLink)
		r.Post("/{id}/adjust", h.adjustLink)
		r.Post("/{id}/unlink", h.unlinkDocument)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scopeFromRequest builds the operation scope from the identity headers.
// All three are required; upstream auth is expected to have set them.
func scopeFromRequest(r *http.Request) (core.Scope, error) {
	tenantID, err := headerInt64(r, "X-Tenant-ID")
	if err != nil {
		return core.Scope{}, err
	}
	legalEntityID, err := headerInt64(r, "X-Legal-Entity-ID")
	if err != nil {
		return core.Scope{}, err
	}
	actorID, err := headerInt64(r, "X-Actor-ID")
	if err != nil {
		return core.Scope{}, err
	}
	return core.Scope{
		TenantID:      tenantID,
		LegalEntityID: legalEntityID,
		ActorID:       actorID,
		RequestID:     requestIDFromContext(r.Context()),
	}, nil
}

func headerInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.Header.Get(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, &core.ValidationError{Field: name, Message: "missing or invalid header"}
	}
	return v, nil
}

// urlID parses the named chi URL parameter as a positive int64.
func urlID(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, &core.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return v, nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
