package control

import (
	"context"

	"github.com/core-tools/hsu-sysmock/pkg/domain"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	grpcServerRegistrar.RegisterService(&mockControlServiceDesc, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

func (h *grpcServerHandler) Status(ctx context.Context, request *emptypb.Empty) (*structpb.Struct, error) {
	mockStatus, err := h.handler.Status(ctx)
	if err != nil {
		h.logger.Errorf("Status server handler: %v", err)
		return nil, toStatusError(err)
	}

	units := make(map[string]interface{}, len(mockStatus.Units))
	for name, state := range mockStatus.Units {
		units[name] = state
	}
	response, err := structpb.NewStruct(map[string]interface{}{
		"power_state": mockStatus.PowerState,
		"units":       units,
	})
	if err != nil {
		h.logger.Errorf("Status server handler, encoding: %v", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	h.logger.Debugf("Status server handler done")
	return response, nil
}

func (h *grpcServerHandler) Reset(ctx context.Context, request *emptypb.Empty) (*emptypb.Empty, error) {
	if err := h.handler.Reset(ctx); err != nil {
		h.logger.Errorf("Reset server handler: %v", err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Reset server handler done")
	return &emptypb.Empty{}, nil
}

func toStatusError(err error) error {
	code := codes.Unknown
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation, errors.ErrorTypeInvalidAddress:
		code = codes.InvalidArgument
	case errors.ErrorTypeNotFound:
		code = codes.NotFound
	case errors.ErrorTypeConflict:
		code = codes.AlreadyExists
	case errors.ErrorTypeCancelled:
		code = codes.Canceled
	case errors.ErrorTypeNetwork:
		code = codes.Unavailable
	case errors.ErrorTypeInternal, errors.ErrorTypeIO:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
