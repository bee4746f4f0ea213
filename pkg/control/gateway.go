package control

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-sysmock/pkg/domain"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		conn:   grpcClientConnection,
		logger: logger,
	}
}

type grpcClientGateway struct {
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

func (gw *grpcClientGateway) Status(ctx context.Context) (*domain.Status, error) {
	response := new(structpb.Struct)
	if err := gw.conn.Invoke(ctx, statusMethodName, &emptypb.Empty{}, response); err != nil {
		gw.logger.Errorf("Status client gateway: %v", err)
		return nil, err
	}

	mockStatus, err := decodeStatus(response)
	if err != nil {
		gw.logger.Errorf("Status client gateway, decoding: %v", err)
		return nil, err
	}
	gw.logger.Debugf("Status client gateway done")
	return mockStatus, nil
}

func (gw *grpcClientGateway) Reset(ctx context.Context) error {
	if err := gw.conn.Invoke(ctx, resetMethodName, &emptypb.Empty{}, new(emptypb.Empty)); err != nil {
		gw.logger.Errorf("Reset client gateway: %v", err)
		return err
	}
	gw.logger.Debugf("Reset client gateway done")
	return nil
}

func decodeStatus(response *structpb.Struct) (*domain.Status, error) {
	fields := response.AsMap()

	powerState, ok := fields["power_state"].(string)
	if !ok {
		return nil, errors.NewInternalError("status response has no power_state", nil)
	}

	mockStatus := &domain.Status{
		PowerState: powerState,
		Units:      make(map[string]string),
	}
	units, _ := fields["units"].(map[string]interface{})
	for name, value := range units {
		state, ok := value.(string)
		if !ok {
			return nil, errors.NewInternalError(fmt.Sprintf("unit %s has a non-string state", name), nil)
		}
		mockStatus.Units[name] = state
	}
	return mockStatus, nil
}
