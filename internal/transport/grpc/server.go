// Package grpcx exposes the standard gRPC health service so orchestrators can
// probe the chat service without speaking HTTP.
package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported alongside the overall ("") health status.
const ServiceName = "chat.v1.ChatHub"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	addr   string
	gs     *grpc.Server
	health *health.Server
	store  Pinger
	every  time.Duration
	ln     net.Listener

	stopProbe context.CancelFunc
	probeDone chan struct{}
}

// New собирает сервер; probeEvery <= 0 отключает периодическую проверку хранилища.
func New(addr string, store Pinger, probeEvery time.Duration) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		addr:   addr,
		gs:     gs,
		health: hs,
		store:  store,
		every:  probeEvery,
	}
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.Serve(ctx, ln)
	return nil
}

// Serve принимает соединения на готовом listener (в тестах bufconn).
func (s *Server) Serve(ctx context.Context, ln net.Listener) {
	s.ln = ln
	slog.Info("grpc listening", "addr", ln.Addr().String())

	if s.store != nil && s.every > 0 {
		pctx, cancel := context.WithCancel(ctx)
		s.stopProbe = cancel
		s.probeDone = make(chan struct{})
		go s.probeLoop(pctx)
	}

	go func() {
		if err := s.gs.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("grpc serve stopped", slog.Any("err", err))
		}
	}()
}

func (s *Server) probeLoop(ctx context.Context) {
	defer close(s.probeDone)
	t := time.NewTicker(s.every)
	defer t.Stop()

	for {
		s.probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, s.every)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(pctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("storage probe failed", slog.Any("err", err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Stop переводит health в NOT_SERVING и пытается остановиться мягко до истечения ctx.
func (s *Server) Stop(ctx context.Context) {
	if s.stopProbe != nil {
		s.stopProbe()
		<-s.probeDone
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Error("grpc graceful stop timeout; forcing stop")
		s.gs.Stop()
	}

	slog.Info("grpc stopped")
}
