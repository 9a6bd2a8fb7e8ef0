package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/vereinsledger/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// AssociationIDKey is the context key for the association a call is
	// scoped to.
	AssociationIDKey contextKey = "association_id"
	// SubjectKey is the context key for the portal user making the call.
	SubjectKey contextKey = "subject"
)

// GetAssociationID returns the association the call is scoped to.
func GetAssociationID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(AssociationIDKey).(int64)
	return id, ok && id > 0
}

// GetSubject returns the portal user of the call, or "".
func GetSubject(ctx context.Context) string {
	subject, _ := ctx.Value(SubjectKey).(string)
	return subject
}

// WithAssociation scopes ctx to an association.
func WithAssociation(ctx context.Context, associationID int64, subject string) context.Context {
	ctx = context.WithValue(ctx, AssociationIDKey, associationID)
	return context.WithValue(ctx, SubjectKey, subject)
}

// RequireAssociation returns an interceptor that validates the bearer token
// and scopes the call to the association named in it.
func RequireAssociation(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(tokenString)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			ctx = WithAssociation(ctx, claims.AssociationID, claims.Subject)
			recordScope(ctx)
			return next(ctx, req)
		}
	}
}
