// Package server exposes the board over HTTP: the game endpoint the client
// polls, its websocket twin, and a small admin page.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/memoreez/pkg/board"
	"github.com/astromechza/memoreez/pkg/transport"
)

// Board is the part of board.Service the server needs.
type Board interface {
	Count() int
	Color(position int) (string, error)
	Generation() string
	Colors() []string
	Repopulate(ctx context.Context) (string, error)
}

var _ Board = (*board.Service)(nil)

type Server struct {
	board    Board
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(b Board, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		board:  b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the routed, access-logged handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/memoreez").HandlerFunc(s.getMemoreez)
	r.Methods(http.MethodGet).Path("/memoreez/ws").HandlerFunc(s.syncMemoreez)
	r.Methods(http.MethodGet).Path("/admin").HandlerFunc(s.admin)
	return r
}

// resolve answers a game query: no cell parameter asks for the cell count,
// otherwise the color of that cell.
func (s *Server) resolve(_ context.Context, query url.Values) (int, string) {
	if !query.Has("cell") {
		return http.StatusOK, strconv.Itoa(s.board.Count())
	}
	position, err := strconv.Atoi(query.Get("cell"))
	if err != nil {
		return http.StatusBadRequest, "cell must be an integer"
	}
	color, err := s.board.Color(position)
	if err != nil {
		if errors.Is(err, board.ErrNoSuchCell) {
			return http.StatusNotFound, "no such cell"
		}
		s.logger.Error("failed to look up cell", "cell", position, "err", err)
		return http.StatusInternalServerError, "lookup failed"
	}
	return http.StatusOK, color
}

func (s *Server) getMemoreez(writer http.ResponseWriter, request *http.Request) {
	status, body := s.resolve(request.Context(), request.URL.Query())
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writer.WriteHeader(status)
	if _, err := writer.Write([]byte(body)); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

func (s *Server) syncMemoreez(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	if err := transport.Serve(request.Context(), conn, s.resolve); err != nil {
		s.logger.Error("websocket session ended", "err", err)
	}
}

func (s *Server) admin(writer http.ResponseWriter, request *http.Request) {
	switch op := request.URL.Query().Get("op"); op {
	case "":
	case "repopulate":
		generation, err := s.board.Repopulate(request.Context())
		if err != nil {
			s.logger.Error("failed to repopulate", "err", err)
			http.Error(writer, "repopulate failed", http.StatusInternalServerError)
			return
		}
		s.logger.Info("board repopulated by admin", "generation", generation)
		http.Redirect(writer, request, "/admin", http.StatusSeeOther)
		return
	default:
		http.Error(writer, fmt.Sprintf("unknown op %q", op), http.StatusBadRequest)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "generation: %s\n", s.board.Generation())
	fmt.Fprintf(&b, "cells: %d\n", s.board.Count())
	fmt.Fprintf(&b, "colors: %s\n", strings.Join(s.board.Colors(), " "))
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := writer.Write([]byte(b.String())); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}
