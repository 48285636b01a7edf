// Package server exposes the message API and the browser bridge over HTTP
// on a loopback address.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/valentindosimont/focusgate/internal/coordinator"
)

// MessageHandler answers API messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg coordinator.Message) coordinator.Response
}

type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewRouter builds the route table. bridge may be nil.
func NewRouter(handler MessageHandler, bridge http.Handler, accessLog bool) http.Handler {
	r := chi.NewRouter()

	if accessLog {
		r.Use(chimiddleware.Logger)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/message", messageHandler(handler))
		r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			resp := handler.HandleMessage(r.Context(), coordinator.Message{Action: "getTimerState"})
			writeJSON(w, http.StatusOK, resp)
		})
	})

	if bridge != nil {
		r.Get("/bridge", bridge.ServeHTTP)
	}

	return r
}

func messageHandler(handler MessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg coordinator.Message
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			writeJSON(w, http.StatusBadRequest, coordinator.Response{
				"success": false,
				"message": "Invalid request body",
			})
			return
		}
		if msg.Action == "" {
			writeJSON(w, http.StatusBadRequest, coordinator.Response{
				"success": false,
				"message": "Missing action",
			})
			return
		}
		writeJSON(w, http.StatusOK, handler.HandleMessage(r.Context(), msg))
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

// New binds addr immediately so a port conflict is reported at startup.
func New(addr string, h http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		httpServer: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: %v", err)
		}
	}()
	log.Printf("server: listening on %s", s.Addr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
