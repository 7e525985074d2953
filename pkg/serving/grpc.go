package serving

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"k8s.io/klog/v2"
)

const (
	ScorerServiceName = "graphscore.v1.Scorer"

	scoreFullMethod = "/" + ScorerServiceName + "/Score"
)

// ScorerServer is the server API for the graphscore.v1.Scorer service.
//
// Score takes {"inputs": [[...]]} as a google.protobuf.Struct and returns the
// per-node scores as a google.protobuf.ListValue.
type ScorerServer interface {
	Score(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
}

func RegisterScorerServer(s grpc.ServiceRegistrar, srv ScorerServer) {
	s.RegisterService(&scorerServiceDesc, srv)
}

var scorerServiceDesc = grpc.ServiceDesc{
	ServiceName: ScorerServiceName,
	HandlerType: (*ScorerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Score",
			Handler:    scoreHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "graphscore/v1/scorer.proto",
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ScorerServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: scoreFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ScorerServer).Score(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ScorerClient is the client API for the graphscore.v1.Scorer service.
type ScorerClient interface {
	Score(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type scorerClient struct {
	cc grpc.ClientConnInterface
}

func NewScorerClient(cc grpc.ClientConnInterface) ScorerClient {
	return &scorerClient{cc: cc}
}

func (c *scorerClient) Score(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, scoreFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NewScoreRequest wraps inputs, a nested []any of numbers, as a Score request.
func NewScoreRequest(inputs any) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"inputs": inputs})
}

// GRPCServer serves a Predictor as graphscore.v1.Scorer.
type GRPCServer struct {
	predictor Predictor
}

var _ ScorerServer = (*GRPCServer)(nil)

func NewGRPCServer(predictor Predictor) *GRPCServer {
	return &GRPCServer{predictor: predictor}
}

func (s *GRPCServer) Score(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	log := klog.FromContext(ctx)

	inputs, ok := req.GetFields()["inputs"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, `missing "inputs"`)
	}
	startedAt := time.Now()
	x, err := decodeInputs(inputs.AsInterface())
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	out, err := s.predictor.Infer(ctx, x)
	if err != nil {
		return nil, grpcError(ctx, err)
	}

	var values []any
	if list, ok := nested(out).([]any); ok {
		values = list
	} else {
		values = []any{nested(out)}
	}
	resp, err := structpb.NewList(values)
	if err != nil {
		return nil, grpcError(ctx, err)
	}
	log.V(2).Info("scored request", "input", x.Dims(), "duration", time.Since(startedAt))
	return resp, nil
}

func grpcError(ctx context.Context, err error) error {
	if isClientError(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	klog.FromContext(ctx).Error(err, "scoring request")
	return status.Error(codes.Internal, err.Error())
}
