package grpcx

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/cwrk-planet/chat/pkg/logger"
)

const (
	mdRequestID = "x-request-id"

	// дефолтный guard, если у вызова нет deadline
	defaultCallTimeout = 10 * time.Second
)

// UnaryServerInterceptor: request id + recovery + deadline guard + logging.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		ctx = withRequestID(ctx)

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "grpc unary panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}

			fields := append(logger.Args(ctx),
				"method", info.FullMethod,
				"ip", peerAddr(ctx),
				"code", status.Code(err).String(),
				"duration", time.Since(start),
				"resp", clip(marshalLog(resp), 1024),
			)
			if err != nil {
				slog.Error("grpc unary", append(fields, slog.Any("err", err))...)
				return
			}
			slog.Debug("grpc unary", fields...)
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor покрывает Health.Watch.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		ctx := ss.Context()

		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "grpc stream panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			slog.InfoContext(ctx, "grpc stream",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"duration", time.Since(start))
		}()

		return handler(srv, ss)
	}
}

func withRequestID(ctx context.Context) context.Context {
	var reqID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(mdRequestID); len(vals) > 0 {
			reqID = vals[0]
		}
	}
	if reqID == "" {
		reqID = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(mdRequestID, reqID))

	return logger.WithRequestID(ctx, reqID)
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func marshalLog(v any) string {
	if v == nil {
		return ""
	}
	if m, ok := v.(proto.Message); ok {
		b, err := protojson.MarshalOptions{EmitUnpopulated: false}.Marshal(m)
		if err != nil {
			return ""
		}
		return string(b)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
