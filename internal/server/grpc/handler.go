package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	authServiceName = "gophauth.v1.AuthService"

	registerMethod = "/" + authServiceName + "/Register"
	loginMethod    = "/" + authServiceName + "/Login"
	refreshMethod  = "/" + authServiceName + "/Refresh"
	logoutMethod   = "/" + authServiceName + "/Logout"
	meMethod       = "/" + authServiceName + "/Me"
)

// AuthServiceServer is the account and token API. Messages are protobuf
// well-known types: credentials travel as a Struct with "username" and
// "password", refresh tokens as a StringValue.
type AuthServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Logout(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Me(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// AuthServiceRules makes the methods that hand out tokens public. Logout and
// Me use the server's fallback rule.
func AuthServiceRules() map[string]MethodRule {
	return map[string]MethodRule{
		registerMethod: {Public: true},
		loginMethod:    {Public: true},
		refreshMethod:  {Public: true},
	}
}

// RegisterAuthService registers h on s.
func RegisterAuthService(s grpc.ServiceRegistrar, h AuthServiceServer) {
	s.RegisterService(&authServiceDesc, h)
}

// unaryHandler adapts one AuthServiceServer method to a grpc.MethodHandler
// so the interceptor chain sees the full method name.
func unaryHandler[Req proto.Message](fullMethod string, newReq func() Req, call func(AuthServiceServer, context.Context, Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newStringValue() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newEmpty() *emptypb.Empty { return &emptypb.Empty{} }

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: authServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Register",
			Handler:    unaryHandler(registerMethod, newStruct, func(s AuthServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Register(ctx, in)
			}),
		},
		{
			MethodName: "Login",
			Handler:    unaryHandler(loginMethod, newStruct, func(s AuthServiceServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.Login(ctx, in)
			}),
		},
		{
			MethodName: "Refresh",
			Handler:    unaryHandler(refreshMethod, newStringValue, func(s AuthServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return s.Refresh(ctx, in)
			}),
		},
		{
			MethodName: "Logout",
			Handler:    unaryHandler(logoutMethod, newStringValue, func(s AuthServiceServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return s.Logout(ctx, in)
			}),
		},
		{
			MethodName: "Me",
			Handler:    unaryHandler(meMethod, newEmpty, func(s AuthServiceServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.Me(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophauth/v1/auth.proto",
}

// AuthHandler serves AuthServiceServer on top of the user service.
type AuthHandler struct {
	users  *services.UserService
	logger logging.Logger
}

func NewAuthHandler(users *services.UserService, l logging.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: l.With("module", "grpc_auth")}
}

func credentials(in *structpb.Struct) (string, string, error) {
	f := in.GetFields()
	name, pass := f["username"].GetStringValue(), f["password"].GetStringValue()
	if name == "" || pass == "" {
		return "", "", status.Error(codes.InvalidArgument, "username and password are required")
	}
	return name, pass, nil
}

func pairStruct(p auth.TokenPair) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"access_token":       p.AccessToken,
		"refresh_token":      p.RefreshToken,
		"token_type":         common.BearerScheme,
		"access_expires_at":  p.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_expires_at": p.RefreshExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, pass, err := credentials(in)
	if err != nil {
		return nil, err
	}

	user, err := h.users.Register(ctx, name, pass)
	if err != nil {
		return nil, h.serviceStatus(ctx, err)
	}

	return structpb.NewStruct(map[string]any{
		"id":       user.ID,
		"username": user.UserName,
		"role":     user.Role,
	})
}

func (h *AuthHandler) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, pass, err := credentials(in)
	if err != nil {
		return nil, err
	}

	pair, err := h.users.Login(ctx, name, pass)
	if err != nil {
		return nil, h.serviceStatus(ctx, err)
	}
	return pairStruct(pair)
}

func (h *AuthHandler) Refresh(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	pair, err := h.users.Refresh(ctx, in.GetValue())
	if err != nil {
		return nil, h.serviceStatus(ctx, err)
	}
	return pairStruct(pair)
}

// Logout revokes the caller's access token and the refresh token in the
// request, when one is given.
func (h *AuthHandler) Logout(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := h.users.Logout(ctx, p, in.GetValue()); err != nil {
		return nil, h.serviceStatus(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (h *AuthHandler) Me(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	return structpb.NewStruct(map[string]any{
		"sub":  p.Subject,
		"role": string(p.Role),
		"jti":  p.TokenID,
		"exp":  p.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// serviceStatus converts a service error into a gRPC status. Only fixed
// messages leave the server.
func (h *AuthHandler) serviceStatus(ctx context.Context, err error) error {
	if c, ok := auth.CodeOf(err); ok {
		if gc, mapped := codeByCategory[c.Category()]; mapped {
			return status.Error(gc, messageByCategory[c.Category()])
		}
	}

	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "username is taken")
	case errors.Is(err, common.ErrorInvalidLoginFormat):
		return status.Error(codes.InvalidArgument, "invalid login format")
	case errors.Is(err, common.ErrorInvalidPasswordFormat):
		return status.Error(codes.InvalidArgument, "invalid password format")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	}

	h.logger.Error(ctx, "rpc failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
