package wsstream

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gitlab.com/lake42/go-websocket-stream/wsstream/wstransports"
)

// A single message received from the websocket server.
type Message struct {
	// Message type (Binary | Text).
	Type wstransports.MessageType
	// Message content.
	Payload []byte
}

// Cancellable pull-based iterator over the inbound message stream of a websocket stream.
//
// Messages received while no Next call is pending accumulate in an internal FIFO buffer; a
// pending Next call is satisfied directly. The iterator terminates when the connection ends
// (whatever the termination cause: closure is never surfaced as an error, callers wanting the
// failure detail must inspect Closed separately) or when Stop is called. Upon termination
// unconsumed buffered messages are discarded, not flushed.
//
// A bridge is a single-consumer iterator: Next must not be called concurrently by multiple
// goroutines. Multiple independent bridges over the same stream are fine: each one observes the
// full message stream.
type MessageBridge struct {
	// Subscription id of the bridge.
	id string
	// Stream the bridge pulls messages from.
	stream *WebsocketStream
	// Internal mutex which guards buffer, waiter and terminated.
	mu sync.Mutex
	// FIFO of messages received while no consumer was waiting.
	buffer []Message
	// Single-slot channel of the pending consumer. Nil when no Next call is suspended.
	waiter chan Message
	// Set once the bridge is exhausted.
	terminated bool
	// Channel closed once the bridge is exhausted. Wakes a pending Next call.
	terminatedChan chan struct{}
}

// # Description
//
// Pull the next message from the bridge.
//
// If a message is already buffered, the oldest one is returned immediately. Otherwise the call
// suspends, racing two outcomes: a new message arrives and is returned, or the connection
// terminates and the terminal marker is returned. A message which was already handed to the
// suspended call wins over a simultaneous termination, so messages received before the close
// event are never lost while a consumer is actively waiting.
//
// Once the bridge has terminated (connection ended or Stop called), every Next call returns the
// terminal marker immediately.
//
// Beware: if the connection never reaches the open state, the connection termination is
// reported through the ready future only and Next suspends until the provided context expires.
//
// # Inputs
//
//   - ctx: Context used to abandon the wait. Its expiration does not terminate the bridge: the
//     call returns the context error and a later Next call can pull the missed message.
//
// # Return
//
//   - (message, true, nil): the next message, in reception order.
//   - (zero, false, nil): the terminal marker, the bridge is exhausted.
//   - (zero, false, ctx.Err()): the provided context expired while waiting.
func (bridge *MessageBridge) Next(ctx context.Context) (Message, bool, error) {
	// Start span
	ctx, span := bridge.stream.tracer.Start(ctx, spanBridgeNext,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrBridgeId, bridge.id),
		))
	defer span.End()
	bridge.mu.Lock()
	// Terminated bridge is exhausted
	if bridge.terminated {
		bridge.mu.Unlock()
		span.SetAttributes(attribute.Bool(attrBridgeTerminal, true))
		span.SetStatus(codes.Ok, codes.Ok.String())
		return Message{}, false, nil
	}
	// Return the oldest buffered message if any
	if len(bridge.buffer) > 0 {
		msg := bridge.buffer[0]
		bridge.buffer = bridge.buffer[1:]
		bridge.mu.Unlock()
		span.SetAttributes(attribute.Bool(attrBridgeTerminal, false))
		span.SetStatus(codes.Ok, codes.Ok.String())
		return msg, true, nil
	}
	// Register as the pending consumer and suspend
	waiter := make(chan Message, 1)
	bridge.waiter = waiter
	bridge.mu.Unlock()
	select {
	case msg := <-waiter:
		span.SetAttributes(attribute.Bool(attrBridgeTerminal, false))
		span.SetStatus(codes.Ok, codes.Ok.String())
		return msg, true, nil
	case <-bridge.terminatedChan:
		// A message handed to the waiter slot just before termination wins
		select {
		case msg := <-waiter:
			span.SetAttributes(attribute.Bool(attrBridgeTerminal, false))
			span.SetStatus(codes.Ok, codes.Ok.String())
			return msg, true, nil
		default:
			span.SetAttributes(attribute.Bool(attrBridgeTerminal, true))
			span.SetStatus(codes.Ok, codes.Ok.String())
			return Message{}, false, nil
		}
	case <-ctx.Done():
		// Disarm the pending consumer slot
		bridge.mu.Lock()
		if bridge.waiter == waiter {
			bridge.waiter = nil
		}
		bridge.mu.Unlock()
		// A message may have been handed to the slot before it was disarmed: put it back at
		// the front of the buffer so it is not lost nor reordered.
		select {
		case msg := <-waiter:
			bridge.mu.Lock()
			if !bridge.terminated {
				bridge.buffer = append([]Message{msg}, bridge.buffer...)
			}
			bridge.mu.Unlock()
		default:
		}
		return Message{}, false, handleError(ctx.Err(), span, codes.Error, codes.Error.String())
	}
}

// # Description
//
// Terminate the bridge early. The bridge unsubscribes from message delivery, discards its
// unconsumed buffered messages and satisfies a pending Next call with the terminal marker.
// Idempotent: calling Stop on an exhausted bridge is a no-op.
func (bridge *MessageBridge) Stop() {
	bridge.stream.unsubscribe(bridge.id)
	bridge.terminate()
}

// Mark the bridge exhausted: discard the buffer and wake a pending Next call with the terminal
// marker. Idempotent.
func (bridge *MessageBridge) terminate() {
	bridge.mu.Lock()
	if bridge.terminated {
		bridge.mu.Unlock()
		return
	}
	bridge.terminated = true
	bridge.buffer = nil
	bridge.waiter = nil
	close(bridge.terminatedChan)
	bridge.mu.Unlock()
}

// Deliver a message to the bridge: satisfy the pending consumer if there is one, buffer the
// message otherwise. Messages delivered to a terminated bridge are dropped.
func (bridge *MessageBridge) deliver(msg Message) {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if bridge.terminated {
		return
	}
	if bridge.waiter != nil {
		// Satisfy the pending consumer directly. The slot has capacity 1 and is disarmed after
		// each delivery: the send never blocks.
		bridge.waiter <- msg
		bridge.waiter = nil
		return
	}
	bridge.buffer = append(bridge.buffer, msg)
}
