package wstransports

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Mock for WebsocketEventListenerInterface
type WebsocketEventListenerMock struct {
	mock.Mock
}

// Factory
func NewWebsocketEventListenerMock() *WebsocketEventListenerMock {
	return &WebsocketEventListenerMock{
		Mock: mock.Mock{},
	}
}

// Mocked OnOpen callback
func (m *WebsocketEventListenerMock) OnOpen(ctx context.Context) {
	m.Called(ctx)
}

// Mocked OnMessage callback
func (m *WebsocketEventListenerMock) OnMessage(ctx context.Context, msgType MessageType, payload []byte) {
	m.Called(ctx, msgType, payload)
}

// Mocked OnClose callback
func (m *WebsocketEventListenerMock) OnClose(ctx context.Context, code StatusCode, reason string, wasClean bool) {
	m.Called(ctx, code, reason, wasClean)
}
