package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "RemitChain/internal/errors"
	"RemitChain/internal/intent"
	"RemitChain/internal/observability/metrics"
	"RemitChain/internal/transfer"
	"RemitChain/internal/verification"
	"RemitChain/internal/web3"
)

// Server 负责暴露 REST 接口，供外部提交与查询汇款。
type Server struct {
	addr    string
	parser  *intent.Parser
	service *transfer.Service
	gate    verification.Gate
	chain   web3.Client
}

// NewServer 构造 API 服务实例。chain 允许为 nil，此时链上历史接口不可用。
func NewServer(addr string, parser *intent.Parser, service *transfer.Service, gate verification.Gate, chain web3.Client) *Server {
	return &Server{addr: addr, parser: parser, service: service, gate: gate, chain: chain}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/parse-intent", instrument("parse_intent", s.handleParseIntent))
	mux.HandleFunc("/api/v1/remittances", instrument("remittances", s.handleRemittances))
	mux.HandleFunc("/api/v1/remittances/", instrument("remittance_detail", s.handleRemittanceDetail))
	mux.HandleFunc("/api/v1/verification/", instrument("verification", s.handleVerification))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type parseIntentRequest struct {
	Message string `json:"message"`
}

type parseIntentResponse struct {
	Success     bool           `json:"success"`
	Intent      *intent.Intent `json:"intent,omitempty"`
	Message     string         `json:"message,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// handleParseIntent 解析自由文本。解析失败属于正常业务结果，
// 仍返回 200，仅内部异常返回 500。
func (s *Server) handleParseIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.parser == nil {
		http.Error(w, "意图解析未初始化", http.StatusServiceUnavailable)
		return
	}

	var req parseIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	parsed, err := s.parser.Parse(r.Context(), req.Message)
	metrics.ObserveParse("api", err == nil)
	if err != nil {
		var failure *intent.ParseFailure
		if stdErrors.As(err, &failure) {
			writeJSON(w, http.StatusOK, parseIntentResponse{
				Success:     false,
				Message:     failure.Reason,
				Suggestions: failure.Suggestions,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, parseIntentResponse{Success: true, Intent: parsed})
}

type createRemittanceRequest struct {
	ID               string         `json:"id,omitempty"`
	Message          string         `json:"message,omitempty"`
	Intent           *intent.Intent `json:"intent,omitempty"`
	RecipientAddress string         `json:"recipient_address"`
}

func (s *Server) handleRemittances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRemittance(w, r)
	case http.MethodGet:
		s.handleListRemittances(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateRemittance(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "汇款服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req createRemittanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	submitted, err := s.service.Submit(r.Context(), transfer.SubmitRequest{
		ID:               req.ID,
		Message:          req.Message,
		Intent:           req.Intent,
		RecipientAddress: req.RecipientAddress,
	})
	if err != nil {
		if xerrors.CodeOf(err) == transfer.CodeTransferValidation {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleListRemittances(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		http.Error(w, "汇款服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := []transfer.ListOption{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, transfer.WithLimit(parsed))
		}
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses := make([]transfer.Status, 0, 2)
		for _, item := range strings.Split(raw, ",") {
			status := transfer.Status(strings.TrimSpace(item))
			if transfer.IsValidStatus(status) {
				statuses = append(statuses, status)
			}
		}
		if len(statuses) > 0 {
			opts = append(opts, transfer.WithStatuses(statuses...))
		}
	}
	if raw := r.URL.Query().Get("q"); raw != "" {
		opts = append(opts, transfer.WithQuery(raw))
	}

	results, err := s.service.List(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleRemittanceDetail 返回单笔汇款，onchain 子路径返回链上历史。
func (s *Server) handleRemittanceDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/remittances/")
	if address, ok := strings.CutPrefix(rest, "onchain/"); ok {
		s.handleChainRemittances(w, r, address)
		return
	}
	id := strings.TrimSpace(rest)
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "缺少汇款 ID", http.StatusBadRequest)
		return
	}
	if s.service == nil {
		http.Error(w, "汇款服务未初始化", http.StatusServiceUnavailable)
		return
	}
	result, err := s.service.Get(r.Context(), id)
	if err != nil {
		if stdErrors.Is(err, transfer.ErrTransferNotFound) {
			http.Error(w, "汇款不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type chainRemittancesResponse struct {
	Address       string   `json:"address"`
	RemittanceIDs []string `json:"remittance_ids"`
}

func (s *Server) handleChainRemittances(w http.ResponseWriter, r *http.Request, address string) {
	if s.chain == nil {
		http.Error(w, "链上客户端未初始化", http.StatusServiceUnavailable)
		return
	}
	if !common.IsHexAddress(address) {
		http.Error(w, "地址格式不合法", http.StatusBadRequest)
		return
	}
	ids, err := s.chain.UserRemittances(r.Context(), common.HexToAddress(address))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	response := chainRemittancesResponse{Address: address, RemittanceIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		response.RemittanceIDs = append(response.RemittanceIDs, "0x"+common.Bytes2Hex(id[:]))
	}
	writeJSON(w, http.StatusOK, response)
}

// handleVerification 读写地址的身份核验标记，仅作展示参考。
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		http.Error(w, "核验存储未初始化", http.StatusServiceUnavailable)
		return
	}
	address := strings.TrimPrefix(r.URL.Path, "/api/v1/verification/")
	if !common.IsHexAddress(address) {
		http.Error(w, "地址格式不合法", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.gate.Verified(r.Context(), address)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodPost:
		record, err := s.gate.MarkVerified(r.Context(), address)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, record)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器挂上请求量与时延指标。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
