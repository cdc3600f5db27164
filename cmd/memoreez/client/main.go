package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/astromechza/memoreez/pkg/config"
	"github.com/astromechza/memoreez/pkg/memoreez"
	"github.com/astromechza/memoreez/pkg/transport"
	"github.com/astromechza/memoreez/pkg/tui"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configPath := pflag.String("config", "", "path to a YAML config file")
	envFile := pflag.String("env-file", ".env", "dotenv file to load if present")
	addrVar := pflag.String("addr", "", "the address to request on")
	transportVar := pflag.String("transport", "", "http or ws")
	pflag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	if *addrVar != "" {
		cfg.Client.Addr = *addrVar
	}
	if *transportVar != "" {
		cfg.Client.Transport = *transportVar
	}
	if err := cfg.Client.Validate(); err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	logFile, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	baseUrl, err := url.Parse("http://" + cfg.Client.Addr)
	if err != nil {
		return err
	}

	var tr memoreez.Transport
	switch cfg.Client.Transport {
	case config.TransportWebsocket:
		u := baseUrl.JoinPath("memoreez", "ws")
		u.Scheme = "ws"
		ws := transport.NewWebsocket(u.String(), &websocket.Dialer{HandshakeTimeout: cfg.Client.RequestTimeout}, logger)
		defer ws.Close()
		tr = ws
	default:
		tr = transport.NewHTTP(&http.Client{Timeout: cfg.Client.RequestTimeout}, logger)
	}
	logger.Info("starting", "addr", cfg.Client.Addr, "transport", cfg.Client.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ctrl *memoreez.Controller
	program := tea.NewProgram(
		tui.NewModel(cfg.Client.Columns, func() { ctrl.Retry() }),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	ctrl, err = memoreez.New(ctx, baseUrl.JoinPath("memoreez").String(), tr, tui.NewView(program),
		memoreez.WithHideDelay(cfg.Client.HideDelay),
		memoreez.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run terminal ui: %w", err)
	}
	return nil
}
