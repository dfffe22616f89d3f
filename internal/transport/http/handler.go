package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"consentry/internal/consent"
	"consentry/internal/platform/middleware"
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// ConsentService is the mutation and record surface the transport needs.
type ConsentService interface {
	Create(ctx context.Context, opID string, params consent.CreateParams) (*consent.CollectionConsent, error)
	Grant(ctx context.Context, opID, recordID string, caller domain.Identity) error
	Revoke(ctx context.Context, opID, recordID string, caller domain.Identity) error
	CreateProcessing(ctx context.Context, opID, recordID string, processor domain.Identity, purposes []domain.Purpose, caller domain.Identity) error
	GrantProcessing(ctx context.Context, opID, recordID string, processor, caller domain.Identity) error
	RevokeProcessing(ctx context.Context, opID, recordID string, processor, caller domain.Identity) error
	RevokePurpose(ctx context.Context, opID, recordID string, purpose domain.Purpose, caller domain.Identity) error
	RevokeAllForProcessor(ctx context.Context, opID, recordID string, processor, caller domain.Identity) error
	AddDelegate(ctx context.Context, opID, recordID string, delegate, caller domain.Identity) error
	RemoveDelegate(ctx context.Context, opID, recordID string, delegate, caller domain.Identity) error
	Get(ctx context.Context, recordID string) (*consent.CollectionConsent, error)
	ListBySubject(ctx context.Context, subject domain.Identity) ([]*consent.CollectionConsent, error)
	Now() int64
}

// AuthzEngine is the point-in-time query surface consulted by resource
// servers. Responses carry no cache headers on purpose: a decision is valid
// only at the instant it was computed.
type AuthzEngine interface {
	Verify(ctx context.Context, recordID string) (bool, error)
	Authorize(ctx context.Context, recordID string, recipient domain.Identity, requested domain.DataFlags) (bool, error)
	VerifyForPurpose(ctx context.Context, recordID string, processor domain.Identity, purpose domain.Purpose) (bool, error)
}

// Handler handles consent record endpoints.
type Handler struct {
	service ConsentService
	authz   AuthzEngine
	logger  *slog.Logger
}

// New creates the transport handler.
func New(service ConsentService, authz AuthzEngine, logger *slog.Logger) *Handler {
	return &Handler{service: service, authz: authz, logger: logger}
}

// caller resolves the authenticated ledger identity. The auth middleware
// guarantees presence; an empty identity here is a wiring bug.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	identity := middleware.GetIdentity(r.Context())
	if identity == "" {
		h.logger.ErrorContext(r.Context(), "identity missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return domain.ZeroIdentity, false
	}
	return domain.Identity(identity), true
}

// opID reads the client-supplied operation ID used for replay protection.
// Resubmitting a mutation under the same ID returns the original success;
// resubmitting a create returns 409, since the response cannot reproduce the
// record the first call minted. Clients recover the record by listing.
func opID(r *http.Request) string {
	return r.Header.Get("X-Operation-ID")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError centralizes domain error translation so every handler returns
// the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal error"
	var de *dErrors.Error
	if errors.As(err, &de) && code != dErrors.CodeInternal {
		message = de.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": message,
	})
}
