package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// protoFile is the descriptor path the service is registered under, so
// server reflection can describe it.
const protoFile = "nifki/v1/runtime.proto"

var runtimeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuntimeServer)(nil),
	Methods:     grpcMethods(),
	Streams:     []grpc.StreamDesc{},
	Metadata:    protoFile,
}

func grpcMethods() []grpc.MethodDesc {
	var descs []grpc.MethodDesc
	for _, m := range methods {
		descs = append(descs, grpc.MethodDesc{MethodName: m.name, Handler: grpcHandler(m)})
	}
	return descs
}

func grpcHandler(m method) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			log.Debugf("grpc %s", m.name)
			res, err := m.call(srv.(*Service), ctx, req.(*structpb.Struct))
			return res, grpcError(err)
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: m.procedure()}
		return interceptor(ctx, in, info, call)
	}
}

// grpcError converts a Connect error to a gRPC status. Connect codes
// share their numbering with gRPC codes.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return status.Error(codes.Code(cerr.Code()), cerr.Message())
	}
	return status.Error(codes.Unknown, err.Error())
}

func init() {
	fd, err := protodesc.NewFile(runtimeFileDescriptor(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("server: build %s descriptor: %v", protoFile, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("server: register %s: %v", protoFile, err))
	}
}

// runtimeFileDescriptor describes the service in protobuf terms: every
// method takes and returns a google.protobuf.Struct.
func runtimeFileDescriptor() *descriptorpb.FileDescriptorProto {
	structName := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())
	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String("RuntimeService")}
	for _, m := range methods {
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.name),
			InputType:  proto.String(structName),
			OutputType: proto.String(structName),
		})
	}
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String("nifki.v1"),
		Dependency: []string{(&structpb.Struct{}).ProtoReflect().Descriptor().ParentFile().Path()},
		Syntax:     proto.String("proto3"),
		Service:    []*descriptorpb.ServiceDescriptorProto{svc},
	}
}

// DescribeRemote asks a gRPC server, through server reflection, for the
// methods of the runtime service. It is how clients check that an
// address serves a compatible runtime.
func DescribeRemote(ctx context.Context, cc grpc.ClientConnInterface) ([]string, error) {
	client := grpcreflect.NewClientAuto(ctx, cc)
	defer client.Reset()

	sd, err := client.ResolveService(ServiceName)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ServiceName, err)
	}
	var names []string
	for _, md := range sd.GetMethods() {
		names = append(names, md.GetName())
	}
	return names, nil
}

// Invoke calls one runtime method over a gRPC connection.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, name string, req *structpb.Struct) (*structpb.Struct, error) {
	res := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+name, req, res); err != nil {
		return nil, err
	}
	return res, nil
}
