package registryauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Machine-readable forbidden reason codes.
const (
	ReasonNoAuthHeader      = "no_auth_header"
	ReasonAuthFailed        = "auth_failed"
	ReasonUnexpectedService = "unexpected_service"
	ReasonMissingScope      = "missing_scope"
	ReasonMalformedScope    = "malformed_scope"
	ReasonPermissionDenied  = "permission_denied"
)

// Handler serves the registry token endpoint.
type Handler struct {
	issuer  *Issuer
	auth    Authenticator
	service string
	logger  *slog.Logger
}

// NewHandler creates the token endpoint handler. service is the configured
// registry service identifier that clients must present.
func NewHandler(issuer *Issuer, auth Authenticator, service string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{issuer: issuer, auth: auth, service: service, logger: logger}
}

// ServeHTTP implements the token issuance flow: validate the auth header,
// authenticate the user, check the presented service, then either issue an
// offline refresh token or parse and authorize the requested scope before
// signing an access token. Any failure short-circuits as 403 with a stable
// reason code; the signing key never appears in a response or log.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := q.Get("account")
	clientID := q.Get("client_id")
	offlineToken := q.Get("offline_token") == "true"
	service := q.Get("service")
	scope := q.Get("scope")

	rlog := h.logger.With(
		"account", account,
		"clientId", clientID,
		"offlineToken", offlineToken,
		"service", service,
		"scope", scope,
	)
	rlog.Debug("received registry authentication request")

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		h.forbidden(w, rlog, ReasonNoAuthHeader, "no authorization header found", nil)
		return
	}

	user, admin, err := h.auth.UserFromAuthHeader(r.Context(), authHeader)
	if err != nil {
		h.forbidden(w, rlog, ReasonAuthFailed, "user authentication failed", map[string]any{"error": err.Error()})
		return
	}
	if user == nil {
		h.forbidden(w, rlog, ReasonAuthFailed, "user authentication failed", nil)
		return
	}
	rlog = rlog.With("user", user.ID, "admin", admin)

	if service != h.service {
		h.forbidden(w, rlog, ReasonUnexpectedService, "registry auth request from unexpected service",
			map[string]any{"expectedService": h.service})
		return
	}

	if offlineToken {
		token, err := h.issuer.RefreshToken(*user)
		if err != nil {
			rlog.Error("refresh token signing failed", "error", err)
			writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": "token signing failed"})
			return
		}
		rlog.Debug("issued offline token")
		writeJSONStatus(w, http.StatusOK, map[string]string{"token": token})
		return
	}

	if scope == "" {
		h.forbidden(w, rlog, ReasonMissingScope, "undefined scope", nil)
		return
	}

	accesses, err := ParseScope(scope)
	if err != nil {
		h.forbidden(w, rlog, ReasonMalformedScope, err.Error(), nil)
		return
	}

	for _, access := range accesses {
		if !admin && !CheckAccess(access, user.ID) {
			h.forbidden(w, rlog, ReasonPermissionDenied, "user does not have permission to carry out request",
				map[string]any{"access": access})
			return
		}
	}

	token, err := h.issuer.AccessToken(*user, accesses)
	if err != nil {
		rlog.Error("access token signing failed", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": "token signing failed"})
		return
	}
	rlog.Debug("issued access token", "accessCount", len(accesses))
	writeJSONStatus(w, http.StatusOK, map[string]string{"token": token})
}

// forbidden writes the structured 403 response and logs the refusal.
func (h *Handler) forbidden(w http.ResponseWriter, rlog *slog.Logger, code, message string, context map[string]any) {
	if context == nil {
		context = map[string]any{}
	}
	context["code"] = code

	rlog.Warn("registry auth request refused", "code", code, "message", message)

	writeJSONStatus(w, http.StatusForbidden, map[string]any{
		"name":    "Forbidden",
		"message": message,
		"context": context,
	})
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
