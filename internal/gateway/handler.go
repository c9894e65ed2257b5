package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	"transkript-bot/internal/utils"
)

// Handler serves the provider's single JSON-RPC POST endpoint. Responses
// are always HTTP 200; failures travel in the envelope's error object.
// Unexpected failures anywhere below are mapped to one generic internal
// error so no internal detail crosses the boundary.
type Handler struct {
	Service      *Service
	MerchantKey  string
	AllowedCIDRs []string
	Log          *log.Logger
}

func NewHandler(svc *Service, merchantKey string, allowedCIDRs []string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{Service: svc, MerchantKey: merchantKey, AllowedCIDRs: allowedCIDRs, Log: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResponse(w, Response{Error: rpcErr(CodeMethodNotPOST, "POST required")})
		return
	}
	if len(h.AllowedCIDRs) > 0 && !utils.IsAllowedIP(clientIP(r), h.AllowedCIDRs) {
		writeResponse(w, Response{Error: rpcErr(CodeInsufficientAuth, "Access denied")})
		return
	}
	if !h.authorized(r) {
		writeResponse(w, Response{Error: rpcErr(CodeInsufficientAuth, "Access denied")})
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, Response{Error: rpcErr(CodeParseError, "Parse error")})
		return
	}

	resp := Response{ID: req.ID}
	result, err := h.dispatch(req)
	if err != nil {
		var rpcE *RPCError
		if errors.As(err, &rpcE) {
			resp.Error = rpcE
		} else {
			h.Log.Printf("gateway %s: %v", req.Method, err)
			resp.Error = errInternal
		}
	} else {
		resp.Result = result
	}
	writeResponse(w, resp)
}

func (h *Handler) dispatch(req Request) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.Log.Printf("gateway %s: panic: %v", req.Method, rec)
			result, err = nil, errInternal
		}
	}()

	switch req.Method {
	case "CheckPerformTransaction":
		var p CheckPerformParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcErr(CodeInvalidRequest, "Invalid params")
		}
		return h.Service.CheckPerformTransaction(p)
	case "CreateTransaction":
		var p CreateParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcErr(CodeInvalidRequest, "Invalid params")
		}
		return h.Service.CreateTransaction(p)
	case "PerformTransaction":
		var p PerformParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcErr(CodeInvalidRequest, "Invalid params")
		}
		return h.Service.PerformTransaction(p)
	case "CancelTransaction":
		var p CancelParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcErr(CodeInvalidRequest, "Invalid params")
		}
		return h.Service.CancelTransaction(p)
	case "CheckTransaction":
		var p CheckParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcErr(CodeInvalidRequest, "Invalid params")
		}
		return h.Service.CheckTransaction(p)
	case "GetStatement":
		var p StatementParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcErr(CodeInvalidRequest, "Invalid params")
		}
		return h.Service.GetStatement(p)
	default:
		return nil, rpcErr(CodeMethodNotFound, "Method not found")
	}
}

// authorized checks the provider's Basic credentials; the password is the
// merchant key.
func (h *Handler) authorized(r *http.Request) bool {
	if h.MerchantKey == "" {
		return true
	}
	_, password, ok := r.BasicAuth()
	return ok && password == h.MerchantKey
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
