package grpcclient

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Messages builds the request and response for each call. The request is
// built once and shared; gRPC only reads it while marshaling.
type Messages struct {
	request     proto.Message
	newResponse func() proto.Message
}

// EmptyMessages sends an empty request and discards the response fields.
// Every proto3 message accepts the empty encoding, so this works for any
// method that tolerates default field values.
func EmptyMessages() *Messages {
	return &Messages{
		request:     &emptypb.Empty{},
		newResponse: func() proto.Message { return &emptypb.Empty{} },
	}
}

// LoadMessages parses protoFile, finds method ("/pkg.Service/Method") and
// builds the request from a JSON payload.
func LoadMessages(protoFile, method, payload string) (*Messages, error) {
	md, err := loadMethodDescriptor(protoFile, method)
	if err != nil {
		return nil, err
	}
	req := dynamic.NewMessage(md.GetInputType())
	body := strings.TrimSpace(payload)
	if body == "" {
		body = "{}"
	}
	if err := req.UnmarshalJSON([]byte(body)); err != nil {
		return nil, fmt.Errorf("grpc request payload: %w", err)
	}
	output := md.GetOutputType()
	return &Messages{
		request: protoadapt.MessageV2Of(req),
		newResponse: func() proto.Message {
			return protoadapt.MessageV2Of(dynamic.NewMessage(output))
		},
	}, nil
}

// New returns the request and a fresh response for one call.
func (m *Messages) New() (req, resp proto.Message) {
	return m.request, m.newResponse()
}

// SplitMethod splits "/pkg.Service/Method" into service and method names.
func SplitMethod(full string) (service, method string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(full), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", fmt.Errorf("invalid grpc method %q (want /package.Service/Method)", full)
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}

// NormalizeMethod returns method in "/pkg.Service/Method" form.
func NormalizeMethod(full string) (string, error) {
	if strings.TrimSpace(full) == "" {
		return DefaultMethod, nil
	}
	svc, m, err := SplitMethod(full)
	if err != nil {
		return "", err
	}
	return "/" + svc + "/" + m, nil
}

func loadMethodDescriptor(protoPath, full string) (*desc.MethodDescriptor, error) {
	protoPath = strings.TrimSpace(protoPath)
	if protoPath == "" {
		return nil, fmt.Errorf("grpc proto file is required")
	}
	serviceName, methodName, err := SplitMethod(full)
	if err != nil {
		return nil, err
	}
	parser := protoparse.Parser{
		ImportPaths: []string{filepath.Dir(protoPath)},
	}
	files, err := parser.ParseFiles(filepath.Base(protoPath))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no descriptors parsed from %s", protoPath)
	}
	for _, file := range files {
		for _, svc := range file.GetServices() {
			if matchesServiceName(svc, serviceName) {
				if method := svc.FindMethodByName(methodName); method != nil {
					return method, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("method %s not found in service %s", methodName, serviceName)
}

func matchesServiceName(svc *desc.ServiceDescriptor, target string) bool {
	if target == "" {
		return false
	}
	if svc.GetFullyQualifiedName() == target {
		return true
	}
	return svc.GetName() == target || strings.HasSuffix(target, "."+svc.GetName())
}
