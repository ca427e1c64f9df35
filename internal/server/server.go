// Package server exposes the assistant over HTTP. The layer is thin JSON
// plumbing; every decision lives in the assistant package.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0-uddeshya-0/klarbill/internal/assistant"
	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

const apiVersion = "2.0.0"

// features advertised by the health endpoint.
var features = []string{
	"contextual_responses",
	"regulatory_knowledge",
	"multi_language_support",
	"intelligent_query_analysis",
}

// Server serves the chat API.
type Server struct {
	assembler *assistant.Assembler
	log       zerolog.Logger
}

// NewServer creates a Server over the given assembler.
func NewServer(assembler *assistant.Assembler) *Server {
	return &Server{
		assembler: assembler,
		log:       logger.WithComponent("http-server"),
	}
}

// Handler returns the route table wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/customer_name", s.handleCustomerName)
	mux.HandleFunc("/health", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithRequestID(uuid.NewString())
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

// ListenAndServe blocks serving HTTP on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info().Str("addr", addr).Msg("Starting HTTP server")
	return http.ListenAndServe(addr, s.Handler())
}

type chatRequest struct {
	Message        string   `json:"message"`
	Language       string   `json:"language"`
	CustomerNumber string   `json:"customer_number"`
	InvoiceNumber  string   `json:"invoice_number"`
	History        []string `json:"history"`
}

type chatResponse struct {
	Response           string                `json:"response"`
	Structured         *assistant.Structured `json:"structured,omitempty"`
	NeedsInvoiceNumber bool                  `json:"needs_invoice_number"`
	InvoiceSuggestions []string              `json:"invoice_suggestions,omitempty"`
	QueryType          string                `json:"query_type,omitempty"`
	CustomerName       string                `json:"customer_name,omitempty"`
	InvoiceNumber      string                `json:"invoice_number,omitempty"`
	Error              bool                  `json:"error,omitempty"`

	// Echoed identifiers for session persistence in the calling UI.
	SessionCustomerNumber string `json:"session_customer_number,omitempty"`
	SessionInvoiceNumber  string `json:"session_invoice_number,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result := s.assembler.Answer(r.Context(), assistant.Request{
		Query:          req.Message,
		Language:       req.Language,
		CustomerNumber: req.CustomerNumber,
		InvoiceNumber:  req.InvoiceNumber,
		History:        req.History,
	})

	resp := chatResponse{
		Response:              result.Text,
		Structured:            result.Structured,
		NeedsInvoiceNumber:    result.NeedsInvoiceNumber,
		InvoiceSuggestions:    result.InvoiceSuggestions,
		Error:                 result.Failed,
		SessionCustomerNumber: req.CustomerNumber,
		SessionInvoiceNumber:  req.InvoiceNumber,
	}
	if result.Structured != nil {
		resp.QueryType = string(result.Structured.QueryType)
		resp.CustomerName = result.Structured.CustomerName
		resp.InvoiceNumber = result.Structured.InvoiceNumber
		if resp.SessionInvoiceNumber == "" {
			resp.SessionInvoiceNumber = result.Structured.InvoiceNumber
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type nameRequest struct {
	CustomerNumber string `json:"customer_number"`
	InvoiceNumber  string `json:"invoice_number"`
	Language       string `json:"language"`
}

func (s *Server) handleCustomerName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	greeting, matchType := s.assembler.Greeting(r.Context(), req.CustomerNumber, req.InvoiceNumber, req.Language)
	writeJSON(w, http.StatusOK, map[string]string{
		"customer_greeting": greeting,
		"type":              matchType,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	storeStatus := "healthy"
	if err := s.assembler.StoreHealth(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Store health check failed")
		storeStatus = "unavailable"
		status = "degraded"
	}

	generatorStatus := "healthy"
	if !s.assembler.GeneratorReady() {
		generatorStatus = "unavailable"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"llm_status":   generatorStatus,
		"store_status": storeStatus,
		"version":      apiVersion,
		"features":     features,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "KlarBill",
		"version":     apiVersion,
		"description": "Invoice assistant for German electricity bills",
		"endpoints": map[string]string{
			"chat":          "/chat",
			"customer_name": "/customer_name",
			"health":        "/health",
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
