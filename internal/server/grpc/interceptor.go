package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MethodRule is the static access rule of one RPC method.
type MethodRule struct {
	Public bool
	Guard  *auth.Guard
	Role   auth.Role
}

var codeByCategory = map[auth.Category]codes.Code{
	auth.CategoryAuthentication: codes.Unauthenticated,
	auth.CategoryAuthorization:  codes.PermissionDenied,
	auth.CategoryUnavailable:    codes.Unavailable,
}

var messageByCategory = map[auth.Category]string{
	auth.CategoryAuthentication: "invalid token",
	auth.CategoryAuthorization:  "forbidden",
	auth.CategoryUnavailable:    "service unavailable",
}

func (s *GRPCServer) rule(method string) MethodRule {
	if r, ok := s.rules[method]; ok {
		return r
	}
	return s.fallback
}

// tokenFromMetadata reads "authorization: Bearer <t>" first, then the raw
// access_token key.
func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", common.ErrorMissingToken
	}

	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		scheme, token, ok := strings.Cut(strings.TrimSpace(values[0]), " ")
		if !ok || !strings.EqualFold(scheme, common.BearerScheme) || strings.TrimSpace(token) == "" {
			return "", common.ErrorInvalidAuthHeaderFormat
		}
		return strings.TrimSpace(token), nil
	}

	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 && values[0] != "" {
		return values[0], nil
	}

	return "", common.ErrorMissingToken
}

// toStatus converts a pipeline failure into a gRPC status, recording the
// code it chose.
func (s *GRPCServer) toStatus(err error) error {
	var code string
	var st error

	switch {
	case errors.Is(err, common.ErrorMissingToken):
		code, st = "missing_token", status.Error(codes.Unauthenticated, "missing token")
	case errors.Is(err, common.ErrorInvalidAuthHeaderFormat):
		code, st = "malformed_token", status.Error(codes.Unauthenticated, "invalid token")
	default:
		c, ok := auth.CodeOf(err)
		grpcCode, mapped := codeByCategory[c.Category()]
		if !ok || !mapped {
			code, st = "internal", status.Error(codes.Internal, "internal error")
			break
		}
		code, st = string(c), status.Error(grpcCode, messageByCategory[c.Category()])
	}

	s.metrics.ObserveAuthFailure("grpc", code)
	return st
}

// authenticate runs validation and authorization for method and returns
// the context the handler should see.
func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	r := s.rule(method)
	if r.Public {
		return ctx, nil
	}

	raw, err := tokenFromMetadata(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}

	p, err := s.validator.Validate(ctx, raw, auth.KindAccess)
	if err != nil {
		return nil, s.toStatus(err)
	}

	if r.Guard != nil {
		if err := r.Guard.Authorize(p, r.Role); err != nil {
			s.logger.Debug(ctx, "rpc forbidden", "method", method, "error", err)
			return nil, s.toStatus(err)
		}
	}

	return auth.WithPrincipal(ctx, p), nil
}

func (s *GRPCServer) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		s.metrics.ObserveRequest("grpc", info.FullMethod, status.Code(err).String())
	}()

	authCtx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}

	if s.scope == nil || s.rule(info.FullMethod).Public {
		return handler(authCtx, req)
	}

	err = s.scope.Run(authCtx, func(ctx context.Context, _ dbx.DBTX) error {
		var herr error
		resp, herr = handler(ctx, req)
		return herr
	})
	return resp, err
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// streamInterceptor authenticates streaming calls. Streams get no unit of
// work.
func (s *GRPCServer) streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
}
