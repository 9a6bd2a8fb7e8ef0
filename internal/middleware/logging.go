package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call
// with its association scope and duration. Install it outside
// RequireAssociation so rejected tokens are logged too; the scope is read
// from the context the inner handler saw.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			var scoped context.Context
			resp, err := next(withScopeRecorder(ctx, &scoped), req)

			attrs := []any{"procedure", procedure, "duration_ms", time.Since(start).Milliseconds()}
			if scoped != nil {
				if id, ok := GetAssociationID(scoped); ok {
					attrs = append(attrs, "association_id", id, "subject", GetSubject(scoped))
				}
			}

			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) && connectErr.Code() != connect.CodeInternal && connectErr.Code() != connect.CodeUnknown {
					slog.Warn("RPC error", append(attrs, "code", connectErr.Code(), "error", connectErr.Message())...)
				} else {
					slog.Error("RPC error", append(attrs, "error", err)...)
				}
			} else {
				slog.Info("RPC ok", attrs...)
			}

			return resp, err
		}
	}
}

type scopeRecorderKey struct{}

// withScopeRecorder lets an inner interceptor report the context it passed
// on, so the outer logger can see the association scope.
func withScopeRecorder(ctx context.Context, dst *context.Context) context.Context {
	return context.WithValue(ctx, scopeRecorderKey{}, dst)
}

func recordScope(ctx context.Context) {
	if dst, ok := ctx.Value(scopeRecorderKey{}).(*context.Context); ok {
		*dst = ctx
	}
}
