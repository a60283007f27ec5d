package grpcservice

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipmind/internal/entry"
)

// Client is a typed client for the ClipMind service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// History returns the daemon's history, newest first.
func (c *Client) History(ctx context.Context, opts ...grpc.CallOption) ([]entry.Entry, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodGetHistory, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return fromList(out)
}

// Copy puts the entry with id back on the system clipboard.
func (c *Client) Copy(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodCopy, wrapperspb.String(id), new(emptypb.Empty), opts...)
}

func (c *Client) Delete(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodDelete, wrapperspb.String(id), new(emptypb.Empty), opts...)
}

func (c *Client) SetPinned(ctx context.Context, id string, pinned bool, opts ...grpc.CallOption) error {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":     structpb.NewStringValue(id),
		"pinned": structpb.NewBoolValue(pinned),
	}}
	return c.cc.Invoke(ctx, methodUpdate, req, new(emptypb.Empty), opts...)
}

func (c *Client) Clear(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodClear, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (*StatusInfo, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var info StatusInfo
	if err := fromStruct(out, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Watch calls fn with every history update until ctx is cancelled, the
// server ends the stream, or fn returns an error. A malformed update is
// passed to fn as an empty history.
func (c *Client) Watch(ctx context.Context, fn func(seq uint64, history []entry.Entry) error, opts ...grpc.CallOption) error {
	desc := &serviceDesc.Streams[0]
	cs, err := c.cc.NewStream(ctx, desc, methodWatch, opts...)
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fields := msg.GetFields()
		seq := uint64(fields["seq"].GetNumberValue())
		hist, err := fromList(fields["history"].GetListValue())
		if err != nil {
			hist = []entry.Entry{}
		}
		if err := fn(seq, hist); err != nil {
			return err
		}
	}
}
