package grpcserver

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// splitMethod turns "/pkg.Service/Method" into its two halves.
func splitMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "", full
}

// LoggingUnary logs one line per call. Health checks carry the checked
// service and the answered status; orchestrators poll them constantly, so a
// successful check is logged at debug and a failed one at warn.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}
		svc, method := splitMethod(info.FullMethod)

		// metadata only, never payloads
		fields := []zap.Field{
			zap.String("service", svc),
			zap.String("method", method),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		}
		level := zapcore.InfoLevel
		if in, ok := req.(*healthpb.HealthCheckRequest); ok {
			fields = append(fields, zap.String("target", in.GetService()))
			if out, ok := resp.(*healthpb.HealthCheckResponse); ok && err == nil {
				fields = append(fields, zap.String("status", out.GetStatus().String()))
			}
			level = zapcore.DebugLevel
			if code != codes.OK {
				level = zapcore.WarnLevel
			}
		}
		log.Log(level, "grpc", fields...)
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				svc, method := splitMethod(info.FullMethod)
				log.Error("grpc panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("service", svc),
					zap.String("method", method),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}
