// Package service exposes the settlement engine over Connect. Messages are
// plain Go structs carried by a JSON codec, so the services are reachable
// with any Connect or plain HTTP+JSON client:
//
//	curl -H 'Authorization: Bearer <token>' -H 'Content-Type: application/json' \
//	  -d '{"member_id": 3}' http://localhost:8080/vereinsledger.v1.ClaimService/ListClaims
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/vereinsledger/internal/auth"
	"github.com/mmynk/vereinsledger/internal/finance"
	"github.com/mmynk/vereinsledger/internal/middleware"
	"github.com/mmynk/vereinsledger/internal/models"
)

// jsonCodec replaces Connect's protobuf-JSON codec for non-proto messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// Codec returns the option clients need to talk to these services.
func Codec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}

// Empty is the message of calls without a payload.
type Empty struct{}

// handle registers one unary procedure of service on mux.
func handle[Req, Res any](mux *http.ServeMux, service, method string, fn func(context.Context, *Req) (*Res, error), opts []connect.HandlerOption) {
	procedure := "/" + service + "/" + method
	opts = append([]connect.HandlerOption{Codec()}, opts...)
	mux.Handle(procedure, connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			res, err := fn(ctx, req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	))
}

// toConnectError maps engine error kinds to Connect codes.
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, finance.ErrValidation), errors.Is(err, finance.ErrSumMismatch):
		code = connect.CodeInvalidArgument
	case errors.Is(err, finance.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, finance.ErrAlreadyClosed):
		code = connect.CodeAlreadyExists
	case errors.Is(err, finance.ErrAlreadyMatched),
		errors.Is(err, finance.ErrAlreadySettled),
		errors.Is(err, finance.ErrClosedYear),
		errors.Is(err, finance.ErrOutOfOrder),
		errors.Is(err, finance.ErrOverAllocation):
		code = connect.CodeFailedPrecondition
	}
	return connect.NewError(code, err)
}

// scope returns the association the call is authorized for.
func scope(ctx context.Context) (int64, error) {
	id, ok := middleware.GetAssociationID(ctx)
	if !ok {
		return 0, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return id, nil
}

func invalidArgument(field string, err error) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s: %w", field, err))
}

// parseDate reads an optional date field. "" yields the zero time.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, invalidArgument(field, err)
	}
	return t, nil
}
