package proto

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"NutBoltDetServer/detect"
	"NutBoltDetServer/ingest"
	"NutBoltDetServer/service"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

type Server struct {
	svc *service.Service
	log *zap.Logger
}

func NewServer(svc *service.Service, log *zap.Logger) *Server {
	return &Server{svc: svc, log: log}
}

func (s *Server) Detect(ctx context.Context, req *DetectRequest) (*DetectReply, error) {
	resp, err := s.svc.Detect(ctx, req.Image, "grpc")
	if err != nil {
		return nil, toStatus(err)
	}
	return &DetectReply{
		Success:          true,
		RequestID:        resp.RequestID,
		Detections:       resp.Detections,
		Counts:           resp.Counts,
		Total:            resp.Total,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		ImageSize:        resp.ImageSize,
	}, nil
}

func (s *Server) Health(ctx context.Context, _ *emptypb.Empty) (*HealthReply, error) {
	return &HealthReply{Health: s.svc.Health()}, nil
}

func (s *Server) GetConfig(ctx context.Context, _ *emptypb.Empty) (*ConfigReply, error) {
	return &ConfigReply{Success: true, Config: s.svc.Config()}, nil
}

func (s *Server) UpdateConfig(ctx context.Context, req *UpdateConfigRequest) (*ConfigReply, error) {
	cfg, err := s.svc.UpdateConfig(req.Values)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ConfigReply{Success: true, Config: cfg}, nil
}

// toStatus maps service errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrNoImage), errors.Is(err, ingest.ErrDecode), errors.Is(err, detect.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		return status.Error(codes.Unavailable, "Model not loaded. Please check server logs.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil && code != codes.InvalidArgument {
			log.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			log.Info("grpc call", fields...)
		}
		return resp, err
	}
}

// NewGRPCServer builds a grpc.Server with the detect service registered.
func NewGRPCServer(svc *service.Service, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	RegisterDetectServiceServer(s, NewServer(svc, log))
	return s
}

// StartGRPCServer listens on port and serves in the background. Call
// GracefulStop on the returned server to shut down.
func StartGRPCServer(port int, svc *service.Service, log *zap.Logger) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s := NewGRPCServer(svc, log)
	go func() {
		log.Info("grpc server listening", zap.String("addr", addr))
		if err := s.Serve(lis); err != nil {
			log.Error("grpc server stopped", zap.Error(err))
		}
	}()
	return s, nil
}
