package api

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/leaderboard"
)

const (
	grpcServiceName = "eduquiz.v1.QuizService"

	metadataUserID   = "x-user-id"
	metadataUserRole = "x-user-role"
)

// QuizServiceServer is the gRPC surface for students. Messages are google.protobuf.Struct values carrying the
// same JSON documents as the HTTP API.
type QuizServiceServer interface {
	StartAttempt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SubmitAttempt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetAttempt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetProfile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var quizServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*QuizServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartAttempt", Handler: unary("StartAttempt", QuizServiceServer.StartAttempt)},
		{MethodName: "SubmitAttempt", Handler: unary("SubmitAttempt", QuizServiceServer.SubmitAttempt)},
		{MethodName: "GetAttempt", Handler: unary("GetAttempt", QuizServiceServer.GetAttempt)},
		{MethodName: "GetLeaderboard", Handler: unary("GetLeaderboard", QuizServiceServer.GetLeaderboard)},
		{MethodName: "GetProfile", Handler: unary("GetProfile", QuizServiceServer.GetProfile)},
	},
	Streams: []grpc.StreamDesc{},
}

// GRPCMethod returns the full method name of a QuizService method, as used by clients.
func GRPCMethod(name string) string {
	return "/" + grpcServiceName + "/" + name
}

type structMethod func(QuizServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QuizServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: GRPCMethod(name),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(QuizServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (a *API) StartAttempt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := a.grpcActor(ctx)
	if err != nil {
		return nil, err
	}

	var ref domain.QuizRef
	if err := fromStruct(in, &ref); err != nil {
		return nil, err
	}

	res, err := a.as.Start(ctx, attempt.StartRequest{Actor: actor, Quiz: ref})
	if err != nil {
		return nil, err
	}

	return toStruct(res)
}

func (a *API) SubmitAttempt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := a.grpcActor(ctx)
	if err != nil {
		return nil, err
	}

	var req struct {
		AttemptID string                    `json:"attemptId"`
		Answers   []attempt.SubmittedAnswer `json:"answers"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	res, err := a.as.Submit(ctx, attempt.SubmitRequest{
		Actor:     actor,
		AttemptID: req.AttemptID,
		Answers:   req.Answers,
	})
	if err != nil {
		return nil, err
	}

	return toStruct(res)
}

func (a *API) GetAttempt(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := a.grpcActor(ctx)
	if err != nil {
		return nil, err
	}

	var req struct {
		AttemptID string `json:"attemptId"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	at, err := a.as.GetByID(ctx, actor, req.AttemptID)
	if err != nil {
		return nil, err
	}

	return toStruct(at)
}

func (a *API) GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := a.grpcActor(ctx); err != nil {
		return nil, err
	}

	var req struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}

	l, err := a.ls.GetTop(ctx, leaderboard.GetTopRequest{Page: req.Page, Limit: req.Limit})
	if err != nil {
		return nil, err
	}

	return toStruct(l)
}

func (a *API) GetProfile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := a.grpcActor(ctx)
	if err != nil {
		return nil, err
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		req.UserID = actor.UserID
	}

	p, err := a.ls.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	return toStruct(p)
}

func (a *API) grpcActor(ctx context.Context) (domain.Actor, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	actor := domain.Actor{
		UserID: strings.TrimSpace(first(md.Get(metadataUserID))),
		Role:   domain.Role(strings.ToLower(strings.TrimSpace(first(md.Get(metadataUserRole))))),
	}

	if err := a.ensureUser(ctx, actor); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return errors.InvalidArgument("invalid request: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.InvalidArgument("invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Internal(err)
	}

	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, errors.Internal(err)
	}
	return out, nil
}
