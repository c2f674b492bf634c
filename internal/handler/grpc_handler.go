package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/service"
)

// SubmissionServiceName is the fully qualified gRPC service name.
const SubmissionServiceName = "workbooks.v1.SubmissionService"

// Metadata keys carrying the caller identity on gRPC requests.
const (
	MetadataUserID     = "x-user-id"
	MetadataTenantID   = "x-tenant-id"
	MetadataPrivileged = "x-user-privileged"
)

// SubmissionServer is the service-to-service surface over submission bundles.
// Messages are google.protobuf.Struct values keyed like the JSON API.
type SubmissionServer interface {
	GetSubmission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitSubmission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DecideSubmission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSubmissionAudit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SubmissionServiceDesc describes SubmissionServer for grpc.Server.
var SubmissionServiceDesc = grpc.ServiceDesc{
	ServiceName: SubmissionServiceName,
	HandlerType: (*SubmissionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSubmission", Handler: unaryHandler("GetSubmission", SubmissionServer.GetSubmission)},
		{MethodName: "SubmitSubmission", Handler: unaryHandler("SubmitSubmission", SubmissionServer.SubmitSubmission)},
		{MethodName: "DecideSubmission", Handler: unaryHandler("DecideSubmission", SubmissionServer.DecideSubmission)},
		{MethodName: "ListSubmissionAudit", Handler: unaryHandler("ListSubmissionAudit", SubmissionServer.ListSubmissionAudit)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "workbooks/v1/submission.proto",
}

// RegisterSubmissionServer registers srv on s.
func RegisterSubmissionServer(s grpc.ServiceRegistrar, srv SubmissionServer) {
	s.RegisterService(&SubmissionServiceDesc, srv)
}

func unaryHandler(method string, call func(SubmissionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + SubmissionServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SubmissionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SubmissionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements SubmissionServer over the bundle service.
type GRPCHandler struct {
	bundles *service.BundleService
	logger  zerolog.Logger
}

var _ SubmissionServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(bundles *service.BundleService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		bundles: bundles,
		logger:  logger.With().Str("handler", "grpc").Logger(),
	}
}

// GetSubmission returns a bundle with its workbooks.
func (h *GRPCHandler) GetSubmission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	h.logger.Debug().Str("submission_id", id).Msg("gRPC GetSubmission called")

	view, err := h.bundles.GetSubmission(ctx, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return submissionStruct(view)
}

// SubmitSubmission submits a completed bundle for approval.
func (h *GRPCHandler) SubmitSubmission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	h.logger.Info().Str("submission_id", id).Msg("gRPC SubmitSubmission called")

	view, err := h.bundles.Submit(ctx, id)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return submissionStruct(view)
}

// DecideSubmission approves or rejects a submitted bundle.
func (h *GRPCHandler) DecideSubmission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "id")
	decision := stringField(req, "decision")
	h.logger.Info().
		Str("submission_id", id).
		Str("decision", decision).
		Msg("gRPC DecideSubmission called")

	view, err := h.bundles.Decide(ctx, &service.DecideRequest{
		ID:       id,
		Decision: decision,
		Note:     stringField(req, "note"),
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return submissionStruct(view)
}

// ListSubmissionAudit returns the audit trail of a bundle, oldest first.
func (h *GRPCHandler) ListSubmissionAudit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entries, err := h.bundles.History(ctx, stringField(req, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}

	list := make([]any, 0, len(entries))
	for _, e := range entries {
		m := map[string]any{
			"id":          strconv.FormatInt(e.ID, 10),
			"action":      e.Action,
			"performedBy": e.PerformedBy,
			"performedAt": e.PerformedAt.UTC().Format(time.RFC3339),
		}
		if e.WorkbookID != nil {
			m["workbookId"] = strconv.FormatInt(*e.WorkbookID, 10)
		}
		if e.StatusBefore != nil {
			m["statusBefore"] = *e.StatusBefore
		}
		if e.StatusAfter != nil {
			m["statusAfter"] = *e.StatusAfter
		}
		list = append(list, m)
	}
	return toStruct(map[string]any{"entries": list})
}

// ── conversion ────────────────────────────────────────────────────────────────

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

func submissionStruct(view *service.SubmissionView) (*structpb.Struct, error) {
	sub := view.Submission
	m := map[string]any{
		"id":          sub.ID,
		"ownerUserId": sub.OwnerUserID,
		"companyId":   sub.CompanyID,
		"status":      string(sub.Status),
		"createdAt":   sub.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if sub.DecisionNote != nil {
		m["decisionNote"] = *sub.DecisionNote
	}
	if sub.DecidedByUserID != nil {
		m["decidedByUserId"] = *sub.DecidedByUserID
	}
	if sub.DecidedAt != nil {
		m["decidedAt"] = sub.DecidedAt.UTC().Format(time.RFC3339)
	}

	workbooks := make([]any, 0, len(view.Workbooks))
	for _, wb := range view.Workbooks {
		workbooks = append(workbooks, workbookMap(wb))
	}
	m["workbooks"] = workbooks
	return toStruct(m)
}

func workbookMap(wb *repository.Workbook) map[string]any {
	return map[string]any{
		"id":      strconv.FormatInt(wb.ID, 10),
		"kind":    string(wb.Kind),
		"title":   wb.Title,
		"status":  string(wb.Status),
		"version": wb.Version,
	}
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return s, nil
}

// ── errors and identity ───────────────────────────────────────────────────────

// mapErrorToGRPC maps service errors to gRPC status codes
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// IdentityInterceptor reads the caller identity from request metadata into
// an auth.UserContext. Health checks pass through unauthenticated.
func IdentityInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, "/grpc.health.") {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	userID := firstValue(md, MetadataUserID)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing user identity")
	}
	privileged, _ := strconv.ParseBool(firstValue(md, MetadataPrivileged))

	ctx = auth.WithUserContext(ctx, &auth.UserContext{
		UserID:     userID,
		TenantID:   firstValue(md, MetadataTenantID),
		Privileged: privileged,
	})
	return handler(ctx, req)
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
