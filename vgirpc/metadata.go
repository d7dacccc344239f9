package vgirpc

// Custom metadata keys carried on Arrow IPC record batches.
const (
	// Request batches.
	MetaMethod         = "vgi_rpc.method"
	MetaRequestVersion = "vgi_rpc.request_version"
	MetaRequestID      = "vgi_rpc.request_id"
	MetaLogLevel       = "vgi_rpc.log_level"

	// Zero-row log and error batches in a response.
	MetaLogMessage = "vgi_rpc.log_message"
	MetaLogExtra   = "vgi_rpc.log_extra"

	// Every response batch.
	MetaServerID = "vgi_rpc.server_id"

	// The __describe__ response.
	MetaProtocolName    = "vgi_rpc.protocol_name"
	MetaDescribeVersion = "vgi_rpc.describe_version"
)

const (
	ProtocolVersion = "1"
	DescribeVersion = "2"
)
