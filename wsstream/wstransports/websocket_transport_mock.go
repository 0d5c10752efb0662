package wstransports

import (
	"context"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// Mock for WebsocketTransportInterface
type WebsocketTransportMock struct {
	mock.Mock
}

// Factory
func NewWebsocketTransportMock() *WebsocketTransportMock {
	return &WebsocketTransportMock{
		Mock: mock.Mock{},
	}
}

// Mocked Connect method
func (m *WebsocketTransportMock) Connect(ctx context.Context, target url.URL, protocols []string, listener WebsocketEventListenerInterface) error {
	args := m.Called(ctx, target, protocols, listener)
	return args.Error(0)
}

// Mocked Send method
func (m *WebsocketTransportMock) Send(ctx context.Context, msgType MessageType, payload []byte) error {
	args := m.Called(ctx, msgType, payload)
	return args.Error(0)
}

// Mocked RequestClose method
func (m *WebsocketTransportMock) RequestClose(ctx context.Context, code StatusCode, reason string) error {
	args := m.Called(ctx, code, reason)
	return args.Error(0)
}

// Mocked BinaryType method
func (m *WebsocketTransportMock) BinaryType() MessageType {
	args := m.Called()
	return MessageType(args.Int(0))
}

// Mocked SetBinaryType method
func (m *WebsocketTransportMock) SetBinaryType(msgType MessageType) {
	m.Called(msgType)
}

// Mocked BufferedAmount method
func (m *WebsocketTransportMock) BufferedAmount() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

// Mocked Extensions method
func (m *WebsocketTransportMock) Extensions() string {
	args := m.Called()
	return args.String(0)
}

// Mocked Protocol method
func (m *WebsocketTransportMock) Protocol() string {
	args := m.Called()
	return args.String(0)
}

// Mocked State method
func (m *WebsocketTransportMock) State() ConnectionState {
	args := m.Called()
	return args.Get(0).(ConnectionState)
}

// Mocked Url method
func (m *WebsocketTransportMock) Url() *url.URL {
	args := m.Called()
	return args.Get(0).(*url.URL)
}
