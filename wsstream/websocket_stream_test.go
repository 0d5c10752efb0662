package wsstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
)

/*************************************************************************************************/
/* TEST SUITE                                                                                    */
/*************************************************************************************************/

// Test suite which tests WebsocketStream against a mocked transport. The suite drives the stream
// state machine by calling the stream event handlers the way the transport would.
type WebsocketStreamTestSuite struct {
	suite.Suite
	// Target URL used by the tests
	target *url.URL
}

// Run WebsocketStreamTestSuite test suite
func TestWebsocketStreamTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketStreamTestSuite))
}

// WebsocketStreamTestSuite - Before all tests
func (suite *WebsocketStreamTestSuite) SetupSuite() {
	u, err := url.Parse("ws://localhost:8080")
	require.NoError(suite.T(), err)
	suite.target = u
}

// Create a stream over a mocked transport which accepts the connection. The mock expectations
// must be completed by each test before the background connect task runs: the factory sets only
// the Connect expectation.
func (suite *WebsocketStreamTestSuite) newMockedStream(ctx context.Context) (*WebsocketStream, *wstransports.WebsocketTransportMock) {
	mocked := wstransports.NewWebsocketTransportMock()
	mocked.On("Connect", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	stream, err := NewWebsocketStream(ctx, mocked, suite.target, nil, nil)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), stream)
	return stream, mocked
}

/*************************************************************************************************/
/* FACTORY - TESTS                                                                               */
/*************************************************************************************************/

// # Description
//
// Test factory error paths. Test will succeed if the factory returns an error when the target
// URL is nil, when the transport is nil and when provided options are invalid.
func (suite *WebsocketStreamTestSuite) TestNewWebsocketStreamErrorPaths() {
	mocked := wstransports.NewWebsocketTransportMock()
	// Nil target URL
	stream, err := NewWebsocketStream(context.Background(), mocked, nil, nil, nil)
	require.Error(suite.T(), err)
	require.Nil(suite.T(), stream)
	// Nil transport
	stream, err = NewWebsocketStream(context.Background(), nil, suite.target, nil, nil)
	require.Error(suite.T(), err)
	require.Nil(suite.T(), stream)
	// Invalid options
	stream, err = NewWebsocketStream(context.Background(), mocked, suite.target,
		NewWebsocketStreamOptions().WithProtocols([]string{""}), nil)
	require.Error(suite.T(), err)
	require.Nil(suite.T(), stream)
}

// # Description
//
// Test the factory connection failure path.
//
// Test will succeed if, when the transport Connect method fails:
//   - Ready rejects with a WebsocketClosedError which carries the 1006 status code and embeds
//     the transport error.
//   - Closed remains unsettled.
func (suite *WebsocketStreamTestSuite) TestConnectFailureRejectsReady() {
	// Create stream over a transport which refuses the connection
	mocked := wstransports.NewWebsocketTransportMock()
	connectErr := fmt.Errorf("connection refused")
	mocked.On("Connect", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(connectErr)
	stream, err := NewWebsocketStream(context.Background(), mocked, suite.target, nil, nil)
	require.NoError(suite.T(), err)
	// Ready must reject with a WebsocketClosedError
	err = stream.Ready(context.Background())
	require.Error(suite.T(), err)
	target := WebsocketClosedError{}
	require.True(suite.T(), errors.As(err, &target))
	require.Equal(suite.T(), wstransports.AbnormalClosure, target.Info.Code)
	require.ErrorIs(suite.T(), err, connectErr)
	// Closed must remain unsettled: the wait must expire with the context error
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = stream.Closed(timeoutCtx)
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
}

/*************************************************************************************************/
/* LIFECYCLE - TESTS                                                                             */
/*************************************************************************************************/

// # Description
//
// Test the nominal lifecycle of the stream.
//
// Test will succeed if:
//   - Ready suspends while the connection is not open and resolves on the open event.
//   - Closed resolves with the close data on a clean close event.
func (suite *WebsocketStreamTestSuite) TestReadyAndCleanClosure() {
	stream, _ := suite.newMockedStream(context.Background())
	// Ready must suspend while the connection is not open
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := stream.Ready(timeoutCtx)
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	// Fire the open event - Ready must resolve
	stream.OnOpen(context.Background())
	require.NoError(suite.T(), stream.Ready(context.Background()))
	// Fire a clean close event - Closed must resolve with the close data
	stream.OnClose(context.Background(), wstransports.NormalClosure, "bye", true)
	info, err := stream.Closed(context.Background())
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
	require.Equal(suite.T(), "bye", info.Reason)
}

// # Description
//
// Test the abnormal closure of an established connection.
//
// Test will succeed if, after an open event followed by an abnormal close event:
//   - Ready stays resolved.
//   - Closed rejects with a WebsocketClosedError which carries the close data.
func (suite *WebsocketStreamTestSuite) TestAbnormalClosureAfterOpenRejectsClosed() {
	stream, _ := suite.newMockedStream(context.Background())
	// Fire the open event then an abnormal close event
	stream.OnOpen(context.Background())
	stream.OnClose(context.Background(), wstransports.AbnormalClosure, "websocket connection abnormal closure", false)
	// Ready must stay resolved
	require.NoError(suite.T(), stream.Ready(context.Background()))
	// Closed must reject with a WebsocketClosedError
	_, err := stream.Closed(context.Background())
	require.Error(suite.T(), err)
	target := WebsocketClosedError{}
	require.True(suite.T(), errors.As(err, &target))
	require.Equal(suite.T(), wstransports.AbnormalClosure, target.Info.Code)
}

// # Description
//
// Test the abnormal closure of a connection which never opened.
//
// Test will succeed if, after an abnormal close event without a preceding open event:
//   - Ready rejects with a WebsocketClosedError.
//   - Closed remains unsettled.
func (suite *WebsocketStreamTestSuite) TestAbnormalClosureBeforeOpenRejectsReady() {
	stream, _ := suite.newMockedStream(context.Background())
	// Fire an abnormal close event without a preceding open event
	stream.OnClose(context.Background(), wstransports.AbnormalClosure, "websocket connection abnormal closure", false)
	// Ready must reject with a WebsocketClosedError
	err := stream.Ready(context.Background())
	require.Error(suite.T(), err)
	target := WebsocketClosedError{}
	require.True(suite.T(), errors.As(err, &target))
	// Closed must remain unsettled: the wait must expire with the context error
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = stream.Closed(timeoutCtx)
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
}

// # Description
//
// Test the clean closure of a connection which never opened.
//
// Test will succeed if, after a clean close event without a preceding open event:
//   - Closed resolves with the close data.
//   - Ready remains unsettled.
func (suite *WebsocketStreamTestSuite) TestCleanClosureBeforeOpenLeavesReadyUnsettled() {
	stream, _ := suite.newMockedStream(context.Background())
	// Fire a clean close event without a preceding open event
	stream.OnClose(context.Background(), wstransports.NormalClosure, "bye", true)
	// Closed must resolve with the close data
	info, err := stream.Closed(context.Background())
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
	// Ready must remain unsettled: the wait must expire with the context error
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = stream.Ready(timeoutCtx)
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
}

/*************************************************************************************************/
/* CLOSE - TESTS                                                                                 */
/*************************************************************************************************/

// # Description
//
// Test the Close method.
//
// Test will succeed if:
//   - Close requests transport closure and suspends until the close event fires.
//   - A second Close call does not issue a second close request and observes the same close data.
func (suite *WebsocketStreamTestSuite) TestClose() {
	stream, mocked := suite.newMockedStream(context.Background())
	mocked.On("RequestClose", mock.Anything, wstransports.NormalClosure, "bye").Return(nil)
	// Open the connection
	stream.OnOpen(context.Background())
	// Fire the close event from another goroutine after a short pause so Close suspends first
	go func() {
		time.Sleep(100 * time.Millisecond)
		stream.OnClose(context.Background(), wstransports.NormalClosure, "bye", true)
	}()
	// Close the connection
	info, err := stream.Close(context.Background(), wstransports.NormalClosure, "bye")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
	require.Equal(suite.T(), "bye", info.Reason)
	// Close again - the close request must not be issued a second time
	info, err = stream.Close(context.Background(), wstransports.GoingAway, "too late")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
	mocked.AssertNumberOfCalls(suite.T(), "RequestClose", 1)
}

// # Description
//
// Test the cancellation of the stream context.
//
// Test will succeed if, once the stream context is canceled, the stream requests transport
// closure with the NormalClosure status code and the configured cancellation close reason.
func (suite *WebsocketStreamTestSuite) TestCancellationRequestsNormalClosure() {
	// Create stream with a cancellable context
	ctx, cancel := context.WithCancel(context.Background())
	stream, mocked := suite.newMockedStream(ctx)
	closeRequested := make(chan struct{})
	mocked.On("RequestClose", mock.Anything, wstransports.NormalClosure, "context canceled").
		Return(nil).
		Run(func(args mock.Arguments) { close(closeRequested) })
	// Open the connection then cancel the stream context
	stream.OnOpen(context.Background())
	cancel()
	// The close request must be issued by the background watcher
	select {
	case <-closeRequested:
	case <-time.After(10 * time.Second):
		suite.FailNow("close request was not issued after cancellation")
	}
	// Complete the closing handshake and check the close data
	stream.OnClose(context.Background(), wstransports.NormalClosure, "context canceled", true)
	info, err := stream.Closed(context.Background())
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
}

// # Description
//
// Test the cancellation of the stream context while the connection is still being established.
//
// Test will succeed if:
//   - No close request is issued while the connection is not open: a transport rejects close
//     requests when no connection exists.
//   - Once the connection opens, the deferred close request is issued with the NormalClosure
//     status code and the configured cancellation close reason.
//   - Closed resolves with the close data of the resulting closing handshake.
func (suite *WebsocketStreamTestSuite) TestCancellationDuringConnectClosesAfterOpen() {
	// Create stream with a cancellable context
	ctx, cancel := context.WithCancel(context.Background())
	stream, mocked := suite.newMockedStream(ctx)
	closeRequested := make(chan struct{})
	mocked.On("RequestClose", mock.Anything, wstransports.NormalClosure, "context canceled").
		Return(nil).
		Run(func(args mock.Arguments) { close(closeRequested) })
	// Cancel the stream context before the connection opens
	cancel()
	// No close request must be issued while the connection is not open
	select {
	case <-closeRequested:
		suite.FailNow("close request was issued before the connection opened")
	case <-time.After(200 * time.Millisecond):
	}
	// Open the connection - the deferred close request must be issued
	stream.OnOpen(context.Background())
	select {
	case <-closeRequested:
	case <-time.After(10 * time.Second):
		suite.FailNow("close request was not issued after the connection opened")
	}
	// Complete the closing handshake and check the close data
	stream.OnClose(context.Background(), wstransports.NormalClosure, "context canceled", true)
	info, err := stream.Closed(context.Background())
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
	mocked.AssertNumberOfCalls(suite.T(), "RequestClose", 1)
}

// # Description
//
// Test that a close request rejected by the transport does not fix the close cause.
//
// Test will succeed if:
//   - A Close call made while no connection is established observes the transport rejection and
//     returns once its context expires.
//   - A later Close call, made once the connection is open, issues a new transport close request
//     and observes the close data.
func (suite *WebsocketStreamTestSuite) TestFailedCloseRequestDoesNotFixTheCause() {
	stream, mocked := suite.newMockedStream(context.Background())
	// The transport rejects the first close request: no connection is established yet
	mocked.On("RequestClose", mock.Anything, wstransports.NormalClosure, "bye").
		Return(fmt.Errorf("close request failed because no connection is established")).
		Once()
	mocked.On("RequestClose", mock.Anything, wstransports.NormalClosure, "bye").Return(nil)
	// Close before the connection opens: the request is rejected and the wait expires
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := stream.Close(timeoutCtx, wstransports.NormalClosure, "bye")
	require.ErrorIs(suite.T(), err, context.DeadlineExceeded)
	mocked.AssertNumberOfCalls(suite.T(), "RequestClose", 1)
	// Open the connection and close again: the rejected request must not have burned the close
	// request, so a new one must reach the transport.
	stream.OnOpen(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		stream.OnClose(context.Background(), wstransports.NormalClosure, "bye", true)
	}()
	info, err := stream.Close(context.Background(), wstransports.NormalClosure, "bye")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), wstransports.NormalClosure, info.Code)
	require.Equal(suite.T(), "bye", info.Reason)
	mocked.AssertNumberOfCalls(suite.T(), "RequestClose", 2)
}

// # Description
//
// Test concurrent Close calls.
//
// Test will succeed if:
//   - Two concurrent Close calls both observe the identical close data.
//   - Only one close request reaches the transport.
func (suite *WebsocketStreamTestSuite) TestConcurrentClose() {
	stream, mocked := suite.newMockedStream(context.Background())
	closeRequested := make(chan struct{}, 2)
	mocked.On("RequestClose", mock.Anything, wstransports.NormalClosure, "bye").
		Return(nil).
		Run(func(args mock.Arguments) { closeRequested <- struct{}{} })
	// Open the connection
	stream.OnOpen(context.Background())
	// Launch a first Close call and wait until its close request reached the transport
	type closeResult struct {
		info CloseInfo
		err  error
	}
	results := make(chan closeResult, 2)
	go func() {
		info, err := stream.Close(context.Background(), wstransports.NormalClosure, "bye")
		results <- closeResult{info: info, err: err}
	}()
	select {
	case <-closeRequested:
	case <-time.After(10 * time.Second):
		suite.FailNow("close request was not issued")
	}
	// Let the first call record its accepted request, then launch a second concurrent Close call
	time.Sleep(100 * time.Millisecond)
	go func() {
		info, err := stream.Close(context.Background(), wstransports.GoingAway, "too late")
		results <- closeResult{info: info, err: err}
	}()
	// Let both calls suspend on the closed future, then complete the closing handshake
	time.Sleep(100 * time.Millisecond)
	stream.OnClose(context.Background(), wstransports.NormalClosure, "bye", true)
	// Both calls must observe the identical close data
	for i := 0; i < 2; i = i + 1 {
		select {
		case result := <-results:
			require.NoError(suite.T(), result.err)
			require.Equal(suite.T(), wstransports.NormalClosure, result.info.Code)
			require.Equal(suite.T(), "bye", result.info.Reason)
		case <-time.After(10 * time.Second):
			suite.FailNow("Close call did not return")
		}
	}
	// Only one close request must have reached the transport
	mocked.AssertNumberOfCalls(suite.T(), "RequestClose", 1)
}

/*************************************************************************************************/
/* SEND & PASS-THROUGH ACCESSORS - TESTS                                                         */
/*************************************************************************************************/

// # Description
//
// Test Send and SendText. Test will succeed if Send forwards the payload with the current binary
// message type and SendText forwards the payload with the text message type.
func (suite *WebsocketStreamTestSuite) TestSendAndSendText() {
	stream, mocked := suite.newMockedStream(context.Background())
	mocked.On("BinaryType").Return(int(wstransports.Binary))
	mocked.On("Send", mock.Anything, wstransports.Binary, []byte("binary payload")).Return(nil)
	mocked.On("Send", mock.Anything, wstransports.Text, []byte("text payload")).Return(nil)
	// Send with the current binary message type
	err := stream.Send(context.Background(), []byte("binary payload"))
	require.NoError(suite.T(), err)
	// Send a text message
	err = stream.SendText(context.Background(), "text payload")
	require.NoError(suite.T(), err)
	mocked.AssertExpectations(suite.T())
}

// # Description
//
// Test the pass-through accessors. Test will succeed if each accessor forwards the value
// reported by the transport.
func (suite *WebsocketStreamTestSuite) TestPassThroughAccessors() {
	stream, mocked := suite.newMockedStream(context.Background())
	mocked.On("BinaryType").Return(int(wstransports.Binary))
	mocked.On("SetBinaryType", wstransports.Text).Return()
	mocked.On("BufferedAmount").Return(int64(42))
	mocked.On("Extensions").Return("permessage-deflate")
	mocked.On("Protocol").Return("echo")
	mocked.On("State").Return(wstransports.Open)
	mocked.On("Url").Return(suite.target)
	// Check each accessor forwards the transport value
	require.Equal(suite.T(), wstransports.Binary, stream.BinaryType())
	stream.SetBinaryType(wstransports.Text)
	require.Equal(suite.T(), int64(42), stream.BufferedAmount())
	require.Equal(suite.T(), "permessage-deflate", stream.Extensions())
	require.Equal(suite.T(), "echo", stream.Protocol())
	require.Equal(suite.T(), wstransports.Open, stream.State())
	require.Equal(suite.T(), suite.target, stream.Url())
	mocked.AssertExpectations(suite.T())
}

/*************************************************************************************************/
/* MESSAGE DELIVERY - TESTS                                                                      */
/*************************************************************************************************/

// # Description
//
// Test message broadcast to bridges. Test will succeed if two concurrently subscribed bridges
// both observe the same message: bridges do not compete for messages.
func (suite *WebsocketStreamTestSuite) TestMessageBroadcast() {
	stream, _ := suite.newMockedStream(context.Background())
	stream.OnOpen(context.Background())
	// Mint two bridges
	first := stream.NewMessageBridge()
	second := stream.NewMessageBridge()
	// Fire a message event
	stream.OnMessage(context.Background(), wstransports.Text, []byte("broadcast"))
	// Both bridges must observe the message
	msg, ok, err := first.Next(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), "broadcast", string(msg.Payload))
	msg, ok, err = second.Next(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), "broadcast", string(msg.Payload))
}

// # Description
//
// Test bridge termination on connection closure.
//
// Test will succeed if:
//   - A subscribed bridge terminates once the close event fires and its unconsumed buffered
//     messages are discarded.
//   - A bridge minted after the connection terminated is born exhausted.
func (suite *WebsocketStreamTestSuite) TestBridgeTerminationOnClosure() {
	stream, _ := suite.newMockedStream(context.Background())
	stream.OnOpen(context.Background())
	// Mint a bridge and let a message accumulate in its buffer
	bridge := stream.NewMessageBridge()
	stream.OnMessage(context.Background(), wstransports.Text, []byte("never consumed"))
	// Fire a clean close event - the buffered message must be discarded
	stream.OnClose(context.Background(), wstransports.NormalClosure, "bye", true)
	_, ok, err := bridge.Next(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
	// A bridge minted after the closure must be born exhausted
	late := stream.NewMessageBridge()
	_, ok, err = late.Next(context.Background())
	require.NoError(suite.T(), err)
	require.False(suite.T(), ok)
}

// # Description
//
// Test that a bridge only observes messages received from its creation on. Test will succeed if
// a message fired before the bridge was minted is not observed by the bridge.
func (suite *WebsocketStreamTestSuite) TestBridgeObservesMessagesFromCreationOn() {
	stream, _ := suite.newMockedStream(context.Background())
	stream.OnOpen(context.Background())
	// Fire a message event before any bridge exists
	stream.OnMessage(context.Background(), wstransports.Text, []byte("lost"))
	// Mint a bridge and fire a second message event
	bridge := stream.NewMessageBridge()
	stream.OnMessage(context.Background(), wstransports.Text, []byte("observed"))
	// The bridge must observe the second message only
	msg, ok, err := bridge.Next(context.Background())
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)
	require.Equal(suite.T(), "observed", string(msg.Payload))
}
