package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.klb.dev/clipmind/internal/grpcservice"
	"go.klb.dev/clipmind/internal/ipc"
)

const rpcTimeout = 5 * time.Second

// addClientFlags adds the flags every daemon client command shares.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("server", "", "daemon TCP address (default: local socket)")
	f.String("token", "", "shared secret for --server")
	f.String("socket", "", "local socket path (default: platform specific)")
	f.String("source", defaultSource(), "name sent to the daemon with each request")
	addConfigFlag(cmd)
}

// daemonConn is an open connection to the daemon and the transport it used.
type daemonConn struct {
	*grpc.ClientConn
	client    *grpcservice.Client
	transport string
}

// dialDaemon connects over the local socket unless --server is given.
func dialDaemon(v *viper.Viper) (*daemonConn, error) {
	source := v.GetString("source")

	if server := v.GetString("server"); server != "" {
		opts := dialOpts(v.GetString("token"), source)
		conn, err := grpc.NewClient(server, opts...)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", server, err)
		}
		return &daemonConn{ClientConn: conn, client: grpcservice.NewClient(conn), transport: "tcp (" + server + ")"}, nil
	}

	path := ipc.SocketPath(v.GetString("socket"))
	if !ipc.IsRunning(path) {
		return nil, fmt.Errorf("no clipmind daemon on %s (start one with \"clipmind serve\")", path)
	}
	opts := append(dialOpts("", source),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ipc.Dial(ctx, path)
		}),
	)
	conn, err := grpc.NewClient("passthrough:///clipmind", opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return &daemonConn{ClientConn: conn, client: grpcservice.NewClient(conn), transport: "ipc (" + path + ")"}, nil
}

// withDaemon dials, runs fn with a bounded context, and closes the connection.
func withDaemon(v *viper.Viper, fn func(ctx context.Context, c *grpcservice.Client) error) error {
	dc, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer dc.Close()
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	return fn(ctx, dc.client)
}

// dialOpts returns gRPC dial options carrying the token and source on every call.
func dialOpts(token, source string) []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if token != "" || source != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&clientCreds{token: token, source: source}))
	}
	return opts
}

type clientCreds struct {
	token  string
	source string
}

func (c *clientCreds) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	md := make(map[string]string, 2)
	if c.token != "" {
		md["authorization"] = "Bearer " + c.token
	}
	if c.source != "" {
		md[grpcservice.SourceHeader] = c.source
	}
	return md, nil
}

func (c *clientCreds) RequireTransportSecurity() bool { return false }

// defaultSource names this CLI process in daemon logs and observer lists.
func defaultSource() string {
	if s := os.Getenv("CLIPMIND_SOURCE"); s != "" {
		return s
	}
	if h, err := os.Hostname(); err == nil {
		return "cli@" + h
	}
	return "cli"
}
