package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/core-tools/hsu-sysmock/pkg/domain"
	"github.com/core-tools/hsu-sysmock/pkg/errors"
	"github.com/core-tools/hsu-sysmock/pkg/logging"
)

// MockContract is a mock implementation of domain.Contract for testing
type MockContract struct {
	mock.Mock
}

func (m *MockContract) Status(ctx context.Context) (*domain.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Status), args.Error(1)
}

func (m *MockContract) Reset(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func startTestControl(t *testing.T, handler domain.Contract) domain.Contract {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	RegisterGRPCServerHandler(server, handler, logging.NewNopLogger())
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewGRPCClientGateway(conn, logging.NewNopLogger())
}

func TestControl_Status(t *testing.T) {
	handler := &MockContract{}
	handler.On("Status", mock.Anything).Return(&domain.Status{
		PowerState: "rebooting",
		Units: map[string]string{
			"foo.service": "active",
			"bar.socket":  "failed",
		},
	}, nil)

	gateway := startTestControl(t, handler)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mockStatus, err := gateway.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rebooting", mockStatus.PowerState)
	assert.Equal(t, map[string]string{"foo.service": "active", "bar.socket": "failed"}, mockStatus.Units)

	handler.AssertExpectations(t)
}

func TestControl_StatusNoUnits(t *testing.T) {
	handler := &MockContract{}
	handler.On("Status", mock.Anything).Return(&domain.Status{PowerState: "ready"}, nil)

	gateway := startTestControl(t, handler)

	mockStatus, err := gateway.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", mockStatus.PowerState)
	assert.Empty(t, mockStatus.Units)
}

func TestControl_Reset(t *testing.T) {
	handler := &MockContract{}
	handler.On("Reset", mock.Anything).Return(nil).Once()

	gateway := startTestControl(t, handler)

	require.NoError(t, gateway.Reset(context.Background()))
	handler.AssertExpectations(t)
}

func TestControl_ErrorCodes(t *testing.T) {
	handler := &MockContract{}
	handler.On("Status", mock.Anything).Return(nil, errors.NewNetworkError("bus gone", nil))
	handler.On("Reset", mock.Anything).Return(errors.NewConflictError("busy", nil))

	gateway := startTestControl(t, handler)

	_, err := gateway.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	err = gateway.Reset(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
}

func TestDecodeStatus(t *testing.T) {
	t.Run("missing_power_state", func(t *testing.T) {
		response, err := structpb.NewStruct(map[string]interface{}{"units": map[string]interface{}{}})
		require.NoError(t, err)

		_, err = decodeStatus(response)
		assert.True(t, errors.IsInternalError(err))
	})

	t.Run("non_string_state", func(t *testing.T) {
		response, err := structpb.NewStruct(map[string]interface{}{
			"power_state": "ready",
			"units":       map[string]interface{}{"foo.service": 3.0},
		})
		require.NoError(t, err)

		_, err = decodeStatus(response)
		assert.True(t, errors.IsInternalError(err))
	})
}
