package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := New(WithLimits(Limits{MaxTicks: 50}))
	t.Cleanup(srv.Stop)
	return srv
}

func connectClient(url, name string, opts ...connect.ClientOption) *connect.Client[structpb.Struct, structpb.Struct] {
	return connect.NewClient[structpb.Struct, structpb.Struct](http.DefaultClient, url+"/"+ServiceName+"/"+name, opts...)
}

func TestConnectRun(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, tc := range []struct {
		name string
		opts []connect.ClientOption
	}{
		{"binary", nil},
		{"json", []connect.ClientOption{connect.WithProtoJSON()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := connectClient(ts.URL, "Run", tc.opts...)
			res, err := client.CallUnary(context.Background(), connect.NewRequest(request(t, map[string]any{
				"source": `3 4 * DUMP`,
			})))
			if err != nil {
				t.Fatal(err)
			}
			f := fields{res.Msg}
			if f.str("signal") != "terminated" {
				t.Errorf("signal = %s", f.str("signal"))
			}
			if got := outputOf(res.Msg); len(got) != 1 || got[0] != "12" {
				t.Errorf("output = %q, want [12]", got)
			}
		})
	}
}

func TestConnectErrorCodes(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	ctx := context.Background()

	_, err := connectClient(ts.URL, "Run").CallUnary(ctx, connect.NewRequest(request(t, map[string]any{"source": "FROB"})))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("Run(FROB): %v, want invalid_argument", err)
	}
	if err != nil && !strings.Contains(err.Error(), "Unknown instruction: FROB") {
		t.Errorf("Run(FROB) message = %q", err)
	}

	_, err = connectClient(ts.URL, "TickSession").CallUnary(ctx, connect.NewRequest(request(t, map[string]any{"session": "nope"})))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("TickSession(nope): %v, want not_found", err)
	}
}

func TestConnectSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	ctx := context.Background()

	res, err := connectClient(ts.URL, "OpenSession").CallUnary(ctx, connect.NewRequest(request(t, map[string]any{
		"source": "1 DUMP WAIT 2 DUMP",
	})))
	if err != nil {
		t.Fatal(err)
	}
	id := fields{res.Msg}.str("session")
	if srv.sessions.Len() != 1 {
		t.Fatalf("%d sessions, want 1", srv.sessions.Len())
	}

	tick := connectClient(ts.URL, "TickSession")
	var signals []string
	for range 3 {
		res, err := tick.CallUnary(ctx, connect.NewRequest(request(t, map[string]any{"session": id})))
		if err != nil {
			t.Fatal(err)
		}
		signals = append(signals, fields{res.Msg}.str("signal"))
	}
	if want := []string{"yielded", "terminated", "terminated"}; !slices.Equal(signals, want) {
		t.Errorf("signals = %v, want %v", signals, want)
	}

	if _, err := connectClient(ts.URL, "CloseSession").CallUnary(ctx, connect.NewRequest(request(t, map[string]any{"session": id}))); err != nil {
		t.Fatal(err)
	}
	if srv.sessions.Len() != 0 {
		t.Errorf("%d sessions after close, want 0", srv.sessions.Len())
	}
}

func dialBufconn(t *testing.T, srv *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go srv.ServeGRPC(lis)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cc.Close() })
	return cc
}

func TestGRPCInvoke(t *testing.T) {
	srv := newTestServer(t)
	cc := dialBufconn(t, srv)
	ctx := context.Background()

	res, err := Invoke(ctx, cc, "Assemble", request(t, map[string]any{"source": "1 2 + DROP"}))
	if err != nil {
		t.Fatal(err)
	}
	if f := (fields{res}); !f.value("ok").GetBoolValue() || f.num("instructions", 0) != 5 {
		t.Errorf("Assemble = %v", res)
	}

	res, err = Invoke(ctx, cc, "Run", request(t, map[string]any{"source": `"done" DUMP`}))
	if err != nil {
		t.Fatal(err)
	}
	if got := outputOf(res); len(got) != 1 || got[0] != "done" {
		t.Errorf("Run output = %q", got)
	}

	_, err = Invoke(ctx, cc, "CloseSession", request(t, map[string]any{"session": "missing"}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("CloseSession(missing): %v, want NotFound", err)
	}
	_, err = Invoke(ctx, cc, "Run", request(t, map[string]any{"source": "+"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Run(+): %v, want InvalidArgument", err)
	}
}

func TestGRPCReflection(t *testing.T) {
	srv := newTestServer(t)
	cc := dialBufconn(t, srv)

	names, err := DescribeRemote(context.Background(), cc)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Assemble", "Run", "OpenSession", "TickSession", "CloseSession"}
	if !slices.Equal(names, want) {
		t.Errorf("methods = %v, want %v", names, want)
	}
}
