// Package handler contains the HTTP handlers. Handlers parse requests, call a
// service and write the response; business rules live in the service package.
package handler

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/auth"
	"github.com/sakif/accountlink/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// UserLookup is the single read the home page needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// HomeHandler renders the landing page the OAuth callback redirects to. It
// shows the signed-in user or the sign-in links for the enabled providers.
type HomeHandler struct {
	templates *template.Template
	users     UserLookup
	providers []string
	logger    *slog.Logger
}

// NewHomeHandler parses the embedded templates once at startup.
func NewHomeHandler(users UserLookup, providers []string, logger *slog.Logger) (*HomeHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/home.html")
	if err != nil {
		return nil, err
	}

	return &HomeHandler{
		templates: tmpl,
		users:     users,
		providers: providers,
		logger:    logger,
	}, nil
}

// HandleHome serves GET /. The path is public, so RequireAuth only attaches
// the user ID when the visitor has a valid session.
func (h *HomeHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":     "accountlink",
		"Providers": h.providers,
		"Denied":    r.URL.Query().Get("auth") == "denied",
	}

	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		user, err := h.users.GetUserByID(r.Context(), userID)
		switch {
		case err == nil:
			data["User"] = user
		case errors.Is(err, apperror.ErrNotFound):
			// Cookie outlived its account; render the signed-out page.
		default:
			h.logger.Error("home: loading user failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "home", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// HandleHealth is the liveness check.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
