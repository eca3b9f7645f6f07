// Package httpapi exposes the gateway webhooks and the ops surface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/alertfeed"
	"github.com/ent0n29/mamashield/internal/observability"
	"github.com/ent0n29/mamashield/internal/pipeline"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/sms"
)

const defaultRateLimit = 10

// Orchestrator is the SMS turn pipeline.
type Orchestrator interface {
	Handle(ctx context.Context, phone, text string) (pipeline.Outcome, error)
}

// USSDFlow renders CON/END screens for the USSD gateway.
type USSDFlow interface {
	Handle(ctx context.Context, sessionID, phone, chain string) string
}

// ReadyInfo is the collaborator detail reported by /readyz.
type ReadyInfo struct {
	StoreKind  string   `json:"store"`
	SenderKind string   `json:"sender"`
	Models     []string `json:"models"`
}

// Options wire the server's collaborators.
type Options struct {
	Pipeline Orchestrator
	Flow     USSDFlow
	// Sender delivers the apology SMS when the pipeline fails outright.
	Sender          sms.Sender
	Feed            *alertfeed.Hub
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	EmergencyNumber string
	// RateLimit is the webhook budget in requests per minute per client IP.
	RateLimit int
	Ready     ReadyInfo
}

type Server struct {
	pipeline  Orchestrator
	flow      USSDFlow
	sender    sms.Sender
	feed      *alertfeed.Hub
	metrics   *observability.Metrics
	logger    *zap.Logger
	emergency string
	rateLimit int
	ready     ReadyInfo
	upgrader  websocket.Upgrader
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emergency := strings.TrimSpace(opts.EmergencyNumber)
	if emergency == "" {
		emergency = "1195"
	}
	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	return &Server{
		pipeline:  opts.Pipeline,
		flow:      opts.Flow,
		sender:    opts.Sender,
		feed:      opts.Feed,
		metrics:   opts.Metrics,
		logger:    logger,
		emergency: emergency,
		rateLimit: rateLimit,
		ready:     opts.Ready,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser ops clients omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/ops/latency", s.handleLatency)
	r.Get("/ops/alerts/ws", s.handleAlertsWS)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
		r.Post("/sms", s.handleSMS)
		r.Post("/ussd", s.handleUSSD)
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "MamaShield AI running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"store":  s.ready.StoreKind,
		"sender": s.ready.SenderKind,
		"models": s.ready.Models,
	})
}

// handleSMS is the Africa's Talking delivery webhook. The gateway retries
// non-2xx responses, so pipeline failures still answer 200 after the
// apology SMS went out.
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	phone := strings.TrimSpace(r.PostFormValue("from"))
	text := strings.TrimSpace(r.PostFormValue("text"))
	if phone == "" || text == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "from and text are required")
		return
	}

	if s.metrics != nil {
		s.metrics.InboundMessages.WithLabelValues("sms").Inc()
	}

	out, err := s.pipeline.Handle(r.Context(), phone, text)
	if err != nil {
		s.logger.Error("sms turn failed",
			zap.String("from", privacy.MaskPhone(phone)),
			zap.Error(err))
		apology := fmt.Sprintf("Sorry, service unavailable. Please call your clinic or %s.", s.emergency)
		if sendErr := s.sender.Send(r.Context(), phone, apology); sendErr != nil {
			s.logger.Error("apology send failed", zap.Error(sendErr))
		}
		if s.metrics != nil {
			s.metrics.RepliesSent.WithLabelValues(pipeline.StatusError).Inc()
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": pipeline.StatusError})
		return
	}

	resp := map[string]string{"status": out.Status}
	if out.Status == pipeline.StatusSuccess {
		resp["response"] = out.Reply
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleUSSD answers the gateway's session callback with a plain-text
// CON/END screen.
func (s *Server) handleUSSD(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	sessionID := strings.TrimSpace(r.PostFormValue("sessionId"))
	phone := strings.TrimSpace(r.PostFormValue("phoneNumber"))
	if sessionID == "" || phone == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "sessionId and phoneNumber are required")
		return
	}

	if s.metrics != nil {
		s.metrics.InboundMessages.WithLabelValues("ussd").Inc()
	}

	screen := s.flow.Handle(r.Context(), sessionID, phone, r.PostFormValue("text"))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, screen)
}

func (s *Server) handleLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.StageSnapshot())
}

// handleAlertsWS streams the live alert feed to an ops dashboard.
func (s *Server) handleAlertsWS(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "alert feed not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.feed.Subscribe()
	defer cancel()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	// Read pump: surfaces client disconnects and services control frames.
	go func() {
		defer cancelCtx()
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("request_id", uuid.NewString()),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
