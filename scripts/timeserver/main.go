// Command timeserver is a local target for netstress runs. It answers
// GET /local and the gRPC method /time.Time/LocalTime with the current time
// in a fixed zone, and implements grpc.health.v1.Health, netstress's default
// gRPC method.
//
// In hybrid mode one h2c listener serves both HTTP and gRPC; in grpc mode
// only the gRPC server listens.
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

//go:embed time.proto
var timeProto string

const timeProtoName = "time.proto"

func main() {
	listenAddr := pflag.StringP("listen-addr", "l", ":8080", "Address to listen on")
	zone := pflag.StringP("time-zone", "t", "Local", "IANA time zone of the reported time")
	mode := pflag.StringP("mode", "m", "hybrid", "grpc: gRPC only. hybrid: HTTP and gRPC on one h2c listener")
	delay := pflag.Duration("delay", 0, "Artificial delay added to every response")
	pflag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	loc, err := time.LoadLocation(*zone)
	if err != nil {
		log.Fatal("invalid time zone", zap.String("zone", *zone), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(&clock{loc: loc, delay: *delay, now: time.Now})
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	if err := srv.serve(ctx, log, *listenAddr, *mode); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

type clock struct {
	loc   *time.Location
	delay time.Duration
	now   func() time.Time
}

// localTime returns the current time in RFC 3339 after the configured delay.
func (c *clock) localTime(ctx context.Context) (string, error) {
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.now().In(c.loc).Format(time.RFC3339), nil
}

type server struct {
	clock  *clock
	grpc   *grpc.Server
	health *health.Server
	http   http.Handler
}

func newServer(c *clock) (*server, error) {
	svc, err := loadTimeService()
	if err != nil {
		return nil, err
	}
	s := &server{clock: c, grpc: grpc.NewServer(), health: health.NewServer()}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(svc.GetFullyQualifiedName(), healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	registerDynamicService(s.grpc, svc, s.respond)

	mux := http.NewServeMux()
	mux.HandleFunc("/local", s.handleLocal)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	s.http = mux
	return s, nil
}

// ServeHTTP routes HTTP/2 gRPC calls to the gRPC server and everything else
// to the HTTP mux.
func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
		s.grpc.ServeHTTP(w, r)
		return
	}
	s.http.ServeHTTP(w, r)
}

func (s *server) serve(ctx context.Context, log *zap.Logger, addr, mode string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("listening", zap.Stringer("addr", lis.Addr()), zap.String("mode", mode))

	g, gctx := errgroup.WithContext(ctx)
	switch mode {
	case "grpc":
		g.Go(func() error { return s.grpc.Serve(lis) })
		g.Go(func() error {
			<-gctx.Done()
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return nil
		})
	case "hybrid":
		hs := &http.Server{Handler: h2c.NewHandler(s, &http2.Server{})}
		g.Go(func() error {
			if err := hs.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			s.health.Shutdown()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	default:
		lis.Close()
		return fmt.Errorf("unknown mode %q (want grpc or hybrid)", mode)
	}
	return g.Wait()
}

func (s *server) handleLocal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	now, err := s.clock.localTime(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	body, err := protojson.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"localTime": structpb.NewStringValue(now),
	}})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(body, '\n'))
}

func (s *server) respond(ctx context.Context, method *desc.MethodDescriptor, _ *dynamic.Message) (*dynamic.Message, error) {
	if method.GetName() != "LocalTime" {
		return nil, status.Errorf(codes.Unimplemented, "method %s not supported", method.GetFullyQualifiedName())
	}
	now, err := s.clock.localTime(ctx)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	resp := dynamic.NewMessage(method.GetOutputType())
	if err := resp.TrySetFieldByName("local_time", now); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func loadTimeService() (*desc.ServiceDescriptor, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{timeProtoName: timeProto}),
	}
	files, err := parser.ParseFiles(timeProtoName)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", timeProtoName, err)
	}
	svc := files[0].FindService("time.Time")
	if svc == nil {
		return nil, errors.New("time.Time service not found")
	}
	return svc, nil
}

type dynamicResponder func(ctx context.Context, method *desc.MethodDescriptor, req *dynamic.Message) (*dynamic.Message, error)

type timeService interface{}

type timeHandler struct{}

// registerDynamicService serves every unary method of svc through responder
// without generated stubs.
func registerDynamicService(server *grpc.Server, svc *desc.ServiceDescriptor, responder dynamicResponder) {
	sd := grpc.ServiceDesc{
		ServiceName: svc.GetFullyQualifiedName(),
		HandlerType: (*timeService)(nil),
	}
	for _, m := range svc.GetMethods() {
		m := m
		fullMethod := fmt.Sprintf("/%s/%s", svc.GetFullyQualifiedName(), m.GetName())
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: m.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := dynamic.NewMessage(m.GetInputType())
				if err := dec(req); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req interface{}) (interface{}, error) {
					return responder(ctx, m, req.(*dynamic.Message))
				}
				if interceptor == nil {
					return call(ctx, req)
				}
				return interceptor(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
			},
		})
	}
	server.RegisterService(&sd, &timeHandler{})
}
