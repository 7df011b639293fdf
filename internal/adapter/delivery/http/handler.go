package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

type registry interface {
	Allocate(ctx context.Context, value, owner string) (*entity.Record, error)
	Resolve(ctx context.Context, code string) (*entity.Record, bool, error)
	Stats(ctx context.Context, code string) (*entity.Record, bool, error)
}

type recordHandler struct {
	registry registry
	validate *validator.Validate
}

func newRecordHandler(registry registry, validate *validator.Validate) *recordHandler {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &recordHandler{
		registry: registry,
		validate: validate,
	}
}

// callerIdentity returns the caller's address without the port. It relies on
// middleware.RealIP having rewritten RemoteAddr for proxied requests.
func callerIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *recordHandler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	owner := req.Owner
	if owner == "" {
		owner = callerIdentity(r)
	}

	rec, err := h.registry.Allocate(r.Context(), req.Value, owner)
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		if errors.Is(err, usecase.ErrRetriesExhausted) {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, codeSpaceExhaustedResponse)
			return
		}

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toRecordResponse(rec))
}

func (h *recordHandler) resolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, found, err := h.registry.Resolve(r.Context(), code)
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
		return
	}

	if !found {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, recordNotFoundResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toRecordResponse(rec))
}

func (h *recordHandler) stats(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, found, err := h.registry.Stats(r.Context(), code)
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
		return
	}

	if !found {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, recordNotFoundResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toRecordStatsResponse(rec))
}

// follow resolves the code and redirects to the stored value when it is an
// absolute http(s) URL. Any other value is written back as plain text.
func (h *recordHandler) follow(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, found, err := h.registry.Resolve(r.Context(), code)
	if err != nil {
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))

		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !found {
		http.NotFound(w, r)
		return
	}

	if isRedirectTarget(rec.Value) {
		http.Redirect(w, r, rec.Value, http.StatusFound)
		return
	}

	render.PlainText(w, r, rec.Value)
}

func isRedirectTarget(value string) bool {
	u, err := url.Parse(value)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
