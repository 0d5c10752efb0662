package wstransports

// Constants used for tracing purpose
const (
	// Instrumentation library package name
	pkgName = "gowsstream.wstransports"
	// Instrumentation library package version
	pkgVersion = "0.0.0"
	// Namespace used by the spans, attributes, events and instruments
	namespace = "websocket"
	// Name of the span used to instrument Connect method call
	spanConnect = namespace + "." + "connect"
	// Name of the span used to instrument Send method call
	spanSend = namespace + "." + "send"
	// Name of the span used to instrument RequestClose method call
	spanRequestClose = namespace + "." + "request_close"
	// Name of the span used to instrument OnOpen callback delivery
	spanOnOpen = namespace + "." + "on_open"
	// Name of the span used to instrument OnMessage callback delivery
	spanOnMessage = namespace + "." + "on_message"
	// Name of the span used to instrument OnClose callback delivery
	spanOnClose = namespace + "." + "on_close"

	// Name of the attribute used to provide a url
	attrUrl = "url.full"
	// Name of the attribute used to provide the negotiated subprotocols
	attrProtocols = namespace + "." + "protocols"
	// Name of the attribute used to provide a close status code
	attrCloseCode = namespace + "." + "close.code"
	// Name of the attribute used to provide a close reason
	attrCloseReason = namespace + "." + "close.reason"
	// Name of the attribute used to indicate whether the closing handshake completed
	attrCloseWasClean = namespace + "." + "close.was_clean"
	// Name of the attribute used to provide the message byte size
	attrMessageByteSize = namespace + "." + "message.size"
	// Name of the attribute used to provide the message type
	attrMessageType = namespace + "." + "message.opcode"

	// Name of the counter used to count sent messages
	metricSentMessages = namespace + "." + "sent.messages"
	// Name of the counter used to count sent bytes
	metricSentBytes = namespace + "." + "sent.bytes"
	// Name of the counter used to count received messages
	metricReceivedMessages = namespace + "." + "received.messages"
	// Name of the counter used to count received bytes
	metricReceivedBytes = namespace + "." + "received.bytes"
)
