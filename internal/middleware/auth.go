package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/audit"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/util"
)

type contextKey string

const ParticipantContextKey contextKey = "participant"

func GetParticipant(ctx context.Context) *model.Participant {
	if p, ok := ctx.Value(ParticipantContextKey).(*model.Participant); ok {
		return p
	}
	return nil
}

// WithParticipant stores p the same way the auth middleware does.
func WithParticipant(ctx context.Context, p *model.Participant) context.Context {
	return context.WithValue(ctx, ParticipantContextKey, p)
}

// ParticipantLookup resolves a stored token hash to its participant.
type ParticipantLookup interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Participant, error)
}

type AuthMiddleware struct {
	participants ParticipantLookup
}

func NewAuthMiddleware(participants ParticipantLookup) *AuthMiddleware {
	return &AuthMiddleware{participants: participants}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing authentication token")
			return
		}

		participant, err := m.participants.FindByTokenHash(r.Context(), util.HashToken(token))
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			writeError(w, http.StatusInternalServerError, "Authentication failed")
			return
		}

		if participant == nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"token": util.MaskToken(token)},
			})
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), participant)))
	})
}

// extractToken reads the bearer header. EventSource cannot set headers, so
// the token query parameter is accepted too.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
