package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Request is the provider's JSON-RPC envelope.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response carries either a result or an error, never both.
type Response struct {
	ID     int64       `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *RPCError   `json:"error,omitempty"`
}

// Account holds the checkout account fields (ac.*). The provider is loose
// about value types, so numbers and strings are both accepted.
type Account map[string]interface{}

// Field returns the named account value as a string, empty when absent.
func (a Account) Field(key string) string {
	v, ok := a[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

type CheckPerformParams struct {
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

type CheckPerformResult struct {
	Allow bool `json:"allow"`
}

type CreateParams struct {
	ID      string  `json:"id"`
	Time    int64   `json:"time"`
	Amount  int64   `json:"amount"`
	Account Account `json:"account"`
}

type CreateResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type PerformParams struct {
	ID string `json:"id"`
}

type PerformResult struct {
	Transaction string `json:"transaction"`
	PerformTime int64  `json:"perform_time"`
	State       int    `json:"state"`
}

type CancelParams struct {
	ID     string `json:"id"`
	Reason *int   `json:"reason"`
}

type CancelResult struct {
	Transaction string `json:"transaction"`
	CancelTime  int64  `json:"cancel_time"`
	State       int    `json:"state"`
}

type CheckParams struct {
	ID string `json:"id"`
}

type CheckResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type StatementTransaction struct {
	ID          string  `json:"id"`
	Time        int64   `json:"time"`
	Amount      int64   `json:"amount"`
	Account     Account `json:"account"`
	CreateTime  int64   `json:"create_time"`
	PerformTime int64   `json:"perform_time"`
	CancelTime  int64   `json:"cancel_time"`
	Transaction string  `json:"transaction"`
	State       int     `json:"state"`
	Reason      *int    `json:"reason"`
}

type StatementResult struct {
	Transactions []StatementTransaction `json:"transactions"`
}

// Wire timestamps are Unix milliseconds.

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func timeToMS(t time.Time) int64 {
	return t.UnixMilli()
}

func ptrToMS(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}
