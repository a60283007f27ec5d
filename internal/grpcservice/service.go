// Package grpcservice implements the ClipMind gRPC server and client.
package grpcservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipmind/internal/clip"
	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/hub"
	"go.klb.dev/clipmind/internal/message"
	"go.klb.dev/clipmind/internal/service"
)

// SourceHeader names the caller in request metadata.
const SourceHeader = "x-clipmind-source"

// StatusInfo is the payload of the Status call.
type StatusInfo = service.StatusInfo

// Service implements ClipMindServer.
type Service struct {
	svc   *service.Service
	token string // empty = no auth
}

// New returns a Service backed by svc. token may be empty to disable auth.
func New(svc *service.Service, token string) *Service {
	return &Service{svc: svc, token: token}
}

func (s *Service) GetHistory(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	lv, err := toList(s.svc.History())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return lv, nil
}

func (s *Service) Copy(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	slog.Debug("copy requested", "id", req.GetValue(), "source", sourceFromCtx(ctx))
	return &emptypb.Empty{}, toStatus(s.svc.CopyByID(ctx, req.GetValue()))
}

func (s *Service) Delete(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, toStatus(s.svc.DeleteItem(ctx, req.GetValue()))
}

func (s *Service) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	fields := req.GetFields()
	id := fields["id"].GetStringValue()
	pv, ok := fields["pinned"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, message.ErrMissingPinned.Error())
	}
	if _, isBool := pv.GetKind().(*structpb.Value_BoolValue); !isBool {
		return nil, status.Error(codes.InvalidArgument, "pinned must be a boolean")
	}
	return &emptypb.Empty{}, toStatus(s.svc.UpdateItem(ctx, id, pv.GetBoolValue()))
}

func (s *Service) Clear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, toStatus(s.svc.ClearHistory(ctx))
}

func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	st, err := toStruct(s.svc.Status())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

// Watch streams every history update until the client goes away.
func (s *Service) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}

	so := hub.NewStream(ctx, "watch/"+uuid.NewString())
	h := s.svc.Hub()
	h.Register(so)
	defer h.Unregister(so)

	slog.Info("watch started", "observer", so.ID(), "addr", addrFromCtx(ctx), "source", sourceFromCtx(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-so.Updates():
			lv, err := toList(u.History)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(&structpb.Struct{Fields: map[string]*structpb.Value{
				"seq":     structpb.NewNumberValue(float64(u.Seq)),
				"history": structpb.NewListValue(lv),
			}}); err != nil {
				return err
			}
		}
	}
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is empty.
func (s *Service) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	tok := strings.TrimPrefix(vals[0], "Bearer ")
	if tok != s.token {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, message.ErrMissingID),
		errors.Is(err, entry.ErrUnknownKind),
		errors.Is(err, clip.ErrNotDataURL):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func sourceFromCtx(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(SourceHeader); len(vals) > 0 {
			return vals[0]
		}
	}
	return addrFromCtx(ctx)
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
