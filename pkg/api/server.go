// Package api serves the read-only status API of a running monitor.
package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"vpn-sentinel/pkg/auth"
	"vpn-sentinel/pkg/journal"
	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/version"
)

// StatusSource exposes the most recent cycle.
type StatusSource interface {
	Last() (model.RunSummary, bool)
}

// Server wires the status routes. Journal, Metrics and Issuer are optional.
type Server struct {
	Status  StatusSource
	Journal journal.Journal
	Hub     *AlertHub
	Metrics http.Handler

	// Issuer enables bearer-token auth on /api/v1/* when set.
	Issuer    *auth.Issuer
	AdminUser string
	AdminHash string
}

type statusResponse struct {
	Version string            `json:"version"`
	Ready   bool              `json:"ready"`
	Summary *model.RunSummary `json:"summary,omitempty"`
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("/api/v1/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("/api/v1/history", s.requireAuth(s.handleHistory))
	mux.HandleFunc("/api/v1/alerts", s.requireAuth(s.handleAlerts))
	if s.Hub != nil {
		mux.HandleFunc("/api/v1/alerts/stream", s.requireAuth(s.Hub.HandleStream))
	}
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{Version: version.Build}
	if sum, ok := s.Status.Last(); ok {
		resp.Ready = true
		resp.Summary = &sum
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	cycles, err := s.Journal.Cycles(r.Context(), queryLimit(r))
	if err != nil {
		log.Printf("history query failed: %v", err)
		http.Error(w, "failed to read journal", http.StatusInternalServerError)
		return
	}
	if cycles == nil {
		cycles = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	recs, err := s.Journal.Alerts(r.Context(), queryLimit(r))
	if err != nil {
		log.Printf("alert query failed: %v", err)
		http.Error(w, "failed to read journal", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// tlsCfg may be nil for plain HTTP.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsCfg *tls.Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsCfg != nil {
			log.Printf("status api listening on %s (https)", addr)
			err = srv.ListenAndServeTLS("", "")
		} else {
			log.Printf("status api listening on %s", addr)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.Hub != nil {
			s.Hub.CloseAll()
		}
		return srv.Shutdown(shutdownCtx)
	}
}

// ServerTLSConfig loads the server certificate. When clientCA is set,
// clients must present a certificate signed by it.
func ServerTLSConfig(certFile, keyFile, clientCA string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load cert/key: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if clientCA == "" {
		return cfg, nil
	}
	caData, err := os.ReadFile(clientCA)
	if err != nil {
		return nil, fmt.Errorf("read client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("invalid client ca")
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
