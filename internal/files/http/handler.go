// Package fileshttp exposes file listing, upload and download endpoints.
package fileshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/securhealth/portal/internal/access"
	"github.com/securhealth/portal/internal/audit"
	"github.com/securhealth/portal/internal/auth"
	"github.com/securhealth/portal/internal/files"
	"github.com/securhealth/portal/internal/platform/httpx"
	"github.com/securhealth/portal/internal/policy"
	"github.com/securhealth/portal/internal/shared"
	"github.com/securhealth/portal/internal/shares"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// Gate runs uploads and downloads through the access pipeline.
type Gate interface {
	Upload(ctx context.Context, req access.UploadRequest) (files.File, error)
	Download(ctx context.Context, req access.DownloadRequest) (access.DownloadLink, error)
	RejectRequest(ctx context.Context, action audit.Action, actorID string, client audit.ClientContext, detail string) error
}

// Catalog answers file listings.
type Catalog interface {
	Visible(ctx context.Context, identity policy.Identity) ([]files.File, error)
	Owned(ctx context.Context, ownerID string) ([]files.File, error)
}

// ShareLister lists shares on either side.
type ShareLister interface {
	ListOutgoing(ctx context.Context, ownerID string) ([]shares.Share, error)
	ListIncoming(ctx context.Context, recipientID string) ([]shares.Share, error)
}

// Handler serves /files and /user/files.
type Handler struct {
	logger   *slog.Logger
	gate     Gate
	catalog  Catalog
	shares   ShareLister
	guard    *auth.Middleware
	maxBytes int64
}

// NewHandler builds the files handler. maxBytes bounds an upload request.
func NewHandler(logger *slog.Logger, gate Gate, catalog Catalog, shareLister ShareLister, guard *auth.Middleware, maxBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = files.DefaultMaxUploadBytes
	}
	return &Handler{logger: logger, gate: gate, catalog: catalog, shares: shareLister, guard: guard, maxBytes: maxBytes}
}

// MountRoutes registers the file endpoints. Upload and download reject
// missing credentials through the audited path.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require("")).Get("/files", h.handleList)
	r.With(h.guard.Require(audit.ActionUpload)).Post("/files/upload", h.handleUpload)
	r.With(h.guard.Require(audit.ActionDownload)).Get("/files/download/{id}", h.handleDownload)
	r.With(h.guard.Require("")).Get("/user/files", h.handleMine)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	list, err := h.catalog.Visible(r.Context(), identity)
	if err != nil {
		h.logger.Error("list files", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []files.File{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]files.File{"files": list})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	client := audit.ClientFromRequest(r)
	reject := func(detail string) {
		httpx.RespondError(w, h.gate.RejectRequest(r.Context(), audit.ActionUpload, identity.ID, client, detail))
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reject("file exceeds " + strconv.FormatInt(h.maxBytes, 10) + " bytes")
			return
		}
		reject("malformed multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		reject("file is required")
		return
	}
	defer file.Close()

	var minClearance *int
	if raw := strings.TrimSpace(r.FormValue("minClearance")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			reject("minClearance must be an integer")
			return
		}
		minClearance = &v
	}

	created, err := h.gate.Upload(r.Context(), access.UploadRequest{
		Identity:      identity,
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Size:          header.Size,
		Body:          file,
		Roles:         policy.ParseList(r.FormValue("roles")),
		Departments:   policy.ParseList(r.FormValue("departments")),
		MinClearance:  minClearance,
		SecurityLevel: r.FormValue("securityLevel"),
		Client:        client,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]files.File{"file": created})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	link, err := h.gate.Download(r.Context(), access.DownloadRequest{
		Identity: identity,
		FileID:   chi.URLParam(r, "id"),
		Client:   audit.ClientFromRequest(r),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, link)
}

type mineResponse struct {
	Owned        []files.File   `json:"owned"`
	SharedWithMe []shares.Share `json:"sharedWithMe"`
	SharedByMe   []shares.Share `json:"sharedByMe"`
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	out := mineResponse{Owned: []files.File{}, SharedWithMe: []shares.Share{}, SharedByMe: []shares.Share{}}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		list, err := h.catalog.Owned(ctx, identity.ID)
		if err == nil && list != nil {
			out.Owned = list
		}
		return err
	})
	g.Go(func() error {
		list, err := h.shares.ListIncoming(ctx, identity.ID)
		if err == nil && list != nil {
			out.SharedWithMe = list
		}
		return err
	})
	g.Go(func() error {
		list, err := h.shares.ListOutgoing(ctx, identity.ID)
		if err == nil && list != nil {
			out.SharedByMe = list
		}
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("list user files", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
