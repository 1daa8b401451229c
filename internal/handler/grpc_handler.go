package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/service"
)

// ReviewServiceName is the fully-qualified gRPC service name.
const ReviewServiceName = "payrollreview.v1.ReviewService"

// ReviewServiceServer is the gRPC surface. Messages are
// google.protobuf.Struct so the service needs no generated code.
type ReviewServiceServer interface {
	RunReview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetReview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ExportWorkflow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ReviewServiceDesc describes ReviewServiceServer to grpc.Server.
var ReviewServiceDesc = grpc.ServiceDesc{
	ServiceName: ReviewServiceName,
	HandlerType: (*ReviewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunReview", Handler: unary("RunReview", ReviewServiceServer.RunReview)},
		{MethodName: "GetReview", Handler: unary("GetReview", ReviewServiceServer.GetReview)},
		{MethodName: "ExportWorkflow", Handler: unary("ExportWorkflow", ReviewServiceServer.ExportWorkflow)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payrollreview/v1/review.proto",
}

// RegisterReviewServiceServer registers srv on s.
func RegisterReviewServiceServer(s grpc.ServiceRegistrar, srv ReviewServiceServer) {
	s.RegisterService(&ReviewServiceDesc, srv)
}

type structCall func(ReviewServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call structCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReviewServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ReviewServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReviewServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements ReviewServiceServer
type GRPCHandler struct {
	reviews ReviewAPI
	logger  zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(reviews ReviewAPI, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		reviews: reviews,
		logger:  logger.With().Str("handler", "grpc").Logger(),
	}
}

// userID reads the caller id forwarded in x-user-id metadata, or "".
func userID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-user-id"); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// RunReview runs and stores a review.
func (h *GRPCHandler) RunReview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	h.logger.Info().
		Str("organization_id", str(fields, "organization_id")).
		Str("baseline_dataset_id", str(fields, "baseline_dataset_id")).
		Str("current_dataset_id", str(fields, "current_dataset_id")).
		Msg("gRPC RunReview called")

	requestedBy := str(fields, "requested_by")
	if requestedBy == "" {
		requestedBy = userID(ctx)
	}
	stored, err := h.reviews.RunReview(ctx, &service.RunReviewRequest{
		OrganizationID:    str(fields, "organization_id"),
		BaselineDatasetID: str(fields, "baseline_dataset_id"),
		CurrentDatasetID:  str(fields, "current_dataset_id"),
		RequestedBy:       requestedBy,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to run review")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(sessionResponse(stored, nil, ""))
}

// GetReview loads a stored review with its effective status.
func (h *GRPCHandler) GetReview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	h.logger.Info().
		Str("organization_id", str(fields, "organization_id")).
		Str("id", str(fields, "id")).
		Msg("gRPC GetReview called")

	id, org := str(fields, "id"), str(fields, "organization_id")
	if id == "" || org == "" {
		return nil, mapErrorToGRPC(errors.InvalidInput("id", "id and organization_id are required"))
	}
	detail, err := h.reviews.GetReview(ctx, id, org)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get review")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(sessionResponse(detail.StoredSession, detail.Decision, detail.EffectiveStatus))
}

// ExportWorkflow returns the active rule registry as a workflow graph.
func (h *GRPCHandler) ExportWorkflow(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := str(req.AsMap(), "name")
	h.logger.Info().Str("name", name).Msg("gRPC ExportWorkflow called")

	g, err := h.reviews.ExportWorkflow(name)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to export workflow")
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(g)
}

// UnaryLogging logs one line per unary call with its status code.
func UnaryLogging(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}

// ── Conversion helpers ────────────────────────────────────────────────────────

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// toStruct converts any JSON-marshalable value to a Struct through its JSON
// form, so gRPC and HTTP responses share one shape.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return s, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, errMsg)
	case errors.ErrCodeInvalidInput, errors.ErrCodeValidation:
		return status.Error(codes.InvalidArgument, errMsg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, errMsg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, errMsg)
	case errors.ErrCodeRuleConfiguration, errors.ErrCodeExportEquivalence:
		return status.Error(codes.FailedPrecondition, errMsg)
	default:
		return status.Error(codes.Internal, errMsg)
	}
}
