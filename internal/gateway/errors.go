package gateway

import "fmt"

// Provider error-code space. JSON-RPC framing errors use the -32xxx range,
// business errors the -31xxx range, account-field errors -31050..-31060.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeMethodNotPOST    = -32300
	CodeInternalError    = -32400
	CodeInsufficientAuth = -32504

	CodeInvalidAmount       = -31001
	CodeTransactionNotFound = -31003
	CodeCannotCancel        = -31007
	CodeCannotPerform       = -31008

	CodeUserNotFound     = -31050
	CodeInvalidOrderType = -31051
	CodePlanNotFound     = -31052
	CodePackageNotFound  = -31053
	CodeOrderInProgress  = -31054
	CodeOrderUnavailable = -31055
)

// RPCError is the structured error returned inside the JSON-RPC envelope.
// Data optionally names the offending account field.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

func rpcErr(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

func rpcErrData(code int, message, data string) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data}
}

var (
	errTransactionNotFound = rpcErr(CodeTransactionNotFound, "Transaction not found")
	errCannotPerform       = rpcErr(CodeCannotPerform, "Unable to perform operation")
	errCannotCancel        = rpcErr(CodeCannotCancel, "Unable to cancel transaction")
	errInvalidAmount       = rpcErr(CodeInvalidAmount, "Incorrect amount")
	errInternal            = rpcErr(CodeInternalError, "Internal error")
)
