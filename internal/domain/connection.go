package domain

// Connection is the transport's handle for one live real-time session.
// The coordinator stores and compares handles and pushes encoded events to
// them; it never looks inside.
type Connection interface {
	// ID is unique for the lifetime of the process and never reused.
	ID() string
	// Send queues an encoded event without blocking. It reports false when the
	// connection is closed or its buffer is full and the event was dropped.
	Send(payload []byte) bool
	// Close asks the transport to terminate the connection. It returns
	// immediately; teardown happens asynchronously.
	Close(reason string)
}

// Close reasons the coordinator passes to Connection.Close.
const (
	CloseReasonReplaced = "identity joined from another connection"
	CloseReasonShutdown = "server shutting down"
)
