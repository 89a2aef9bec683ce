package nbi

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/nbi/types"
	"github.com/signalsfoundry/avue/internal/search"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully-qualified names of the visibility service.
const (
	VisibilityServiceName           = "avue.v1.VisibilityService"
	VisibilityServiceSearchMethod   = "/" + VisibilityServiceName + "/Search"
	VisibilityServiceSnapshotMethod = "/" + VisibilityServiceName + "/Snapshot"
)

// Defaults fill optional search request fields.
type Defaults struct {
	HeightM  float64
	RadiusKm float64
}

// VisibilityServiceServer is the server API of avue.v1.VisibilityService.
// Requests and responses are google.protobuf.Struct values shaped like the
// views in package types.
type VisibilityServiceServer interface {
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// VisibilityService serves searches backed by an Orchestrator.
//
// Semantics:
//   - Search starts a search, replacing the current one. Without wait it
//     returns a SearchStarted acknowledgement; with wait it blocks until the
//     search ends and returns its snapshot, or the error that ended it.
//   - Snapshot returns the board, whichever search it displays.
type VisibilityService struct {
	orch     *search.Orchestrator
	defaults Defaults
	log      logging.Logger
}

// NewVisibilityService binds the service to orch.
func NewVisibilityService(orch *search.Orchestrator, defaults Defaults, log logging.Logger) *VisibilityService {
	if log == nil {
		log = logging.Noop()
	}
	return &VisibilityService{orch: orch, defaults: defaults, log: log}
}

// Search implements VisibilityServiceServer.
func (s *VisibilityService) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.SearchRequest
	if err := types.FromStruct(in, &req); err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	out, err := s.search(ctx, req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	resp, err := types.ToStruct(out)
	return resp, ToStatusError(err)
}

// Snapshot implements VisibilityServiceServer.
func (s *VisibilityService) Snapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.SnapshotRequest
	if err := types.FromStruct(in, &req); err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	resp, err := types.ToStruct(s.snapshot(req.Detail))
	return resp, ToStatusError(err)
}

// search is shared by the gRPC and HTTP surfaces. It returns either a
// types.SearchStarted or a types.Snapshot.
func (s *VisibilityService) search(ctx context.Context, req types.SearchRequest) (any, error) {
	point, radiusKm, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	log := logging.LoggerFromContext(ctx, s.log)

	ctx, span := startSearchSpan(ctx, "nbi.Search", point, radiusKm)
	defer span.End()

	sess, err := s.orch.Start(ctx, point, radiusKm)
	if err != nil {
		log.Warn(ctx, "search rejected", logging.Err(err))
		return nil, err
	}
	log.Info(ctx, "search accepted",
		logging.String("search_id", sess.ID),
		logging.Uint64("epoch", sess.Epoch),
		logging.Bool("wait", req.Wait),
	)

	if !req.Wait {
		return types.SearchStarted{
			SearchID: sess.ID,
			Epoch:    sess.Epoch,
			Status:   string(kb.StatusFetching),
			Point:    types.PointFromModel(point),
			RadiusKm: radiusKm,
		}, nil
	}

	status, err := sess.Wait(ctx)
	if status == "" {
		// The caller went away; the search keeps running.
		return nil, err
	}
	if status != kb.StatusDone {
		if err == nil {
			err = fmt.Errorf("search ended with status %s", status)
		}
		return nil, err
	}

	snap := s.orch.Board().Snapshot()
	if snap.SearchID != sess.ID {
		return nil, search.ErrSuperseded
	}
	return types.SnapshotFromModel(snap, req.Detail), nil
}

func (s *VisibilityService) snapshot(detail bool) types.Snapshot {
	return types.SnapshotFromModel(s.orch.Board().Snapshot(), detail)
}

func (s *VisibilityService) resolve(req types.SearchRequest) (model.InstallationPoint, float64, error) {
	if req.Lat == nil || req.Lon == nil {
		return model.InstallationPoint{}, 0, fmt.Errorf("%w: lat and lon are required", ErrInvalidRequest)
	}
	point := model.InstallationPoint{
		Location: model.Coordinate{Lat: *req.Lat, Lon: *req.Lon},
		HeightM:  s.defaults.HeightM,
	}
	if req.HeightM != nil {
		point.HeightM = *req.HeightM
	}
	radiusKm := s.defaults.RadiusKm
	if req.RadiusKm != nil {
		radiusKm = *req.RadiusKm
	}
	if math.IsNaN(radiusKm) || radiusKm <= 0 {
		return model.InstallationPoint{}, 0, fmt.Errorf("%w: radius_km must be positive", ErrInvalidRequest)
	}
	return point, radiusKm, nil
}

// RegisterVisibilityServiceServer registers srv on s.
func RegisterVisibilityServiceServer(s grpc.ServiceRegistrar, srv VisibilityServiceServer) {
	s.RegisterService(&visibilityServiceDesc, srv)
}

var visibilityServiceDesc = grpc.ServiceDesc{
	ServiceName: VisibilityServiceName,
	HandlerType: (*VisibilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: searchHandler},
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "avue/v1/visibility.proto",
}

func searchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisibilityServiceServer).Search(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: VisibilityServiceSearchMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VisibilityServiceServer).Search(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func snapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisibilityServiceServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: VisibilityServiceSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VisibilityServiceServer).Snapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// VisibilityServiceClient is the client API of avue.v1.VisibilityService.
type VisibilityServiceClient interface {
	Search(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type visibilityServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewVisibilityServiceClient returns a client over cc.
func NewVisibilityServiceClient(cc grpc.ClientConnInterface) VisibilityServiceClient {
	return &visibilityServiceClient{cc: cc}
}

func (c *visibilityServiceClient) Search(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, VisibilityServiceSearchMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *visibilityServiceClient) Snapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, VisibilityServiceSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
