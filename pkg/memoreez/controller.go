// Package memoreez implements the client side of the memoreez matching game:
// a Controller that asks the server for the board size and the color behind
// each clicked cell, a Model holding the turn state, and the View and
// Transport contracts the Controller drives.
package memoreez

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultHideDelay is how long a mismatched pair stays visible.
const DefaultHideDelay = 500 * time.Millisecond

// Controller resolves turns. All transport callbacks, clicks and timer
// callbacks are serialized on one lock, and at most one cell query is in
// flight: clicks that arrive while a query is outstanding are dropped.
type Controller struct {
	ctx       context.Context
	endpoint  *url.URL
	transport Transport
	view      View
	logger    *slog.Logger
	clock     clockwork.Clock
	hideDelay time.Duration

	mu          sync.Mutex
	model       *Model
	count       int
	inFlight    bool
	pendingHide *pendingHide
	showingErr  bool
	retry       func()
}

type pendingHide struct {
	timer   clockwork.Timer
	cellIDs [2]int
}

// Option customizes a Controller.
type Option func(*Controller)

func WithClock(c clockwork.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

func WithHideDelay(d time.Duration) Option {
	return func(ctrl *Controller) { ctrl.hideDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(ctrl *Controller) { ctrl.logger = l }
}

// New builds a Controller for the game served at endpoint (for example
// http://localhost:8080/memoreez) and immediately requests the cell count.
// ctx bounds every request the Controller issues.
func New(ctx context.Context, endpoint string, transport Transport, view View, opts ...Option) (*Controller, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	c := &Controller{
		ctx:       ctx,
		endpoint:  u,
		transport: transport,
		view:      view,
		logger:    slog.Default(),
		clock:     clockwork.NewRealClock(),
		hideDelay: DefaultHideDelay,
		model:     NewModel(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.requestCount()
	return c, nil
}

// State returns the current turn state.
func (c *Controller) State() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Selected()
}

// Retry reissues the request that failed most recently, if any.
func (c *Controller) Retry() {
	c.mu.Lock()
	retry := c.retry
	c.retry = nil
	c.mu.Unlock()
	if retry != nil {
		c.logger.Info("retrying failed request")
		retry()
	}
}

func (c *Controller) requestCount() {
	c.transport.Send(c.ctx, c.endpoint.String(), c.onCellCount, func(err error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.fail(err, c.requestCount)
	})
}

func (c *Controller) onCellCount(body string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	count, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || count < 0 {
		c.fail(&TransportError{URL: c.endpoint.String(), Err: fmt.Errorf("%w: cell count %q", ErrMalformedResponse, body)}, c.requestCount)
		return
	}
	c.clearError()
	c.count = count
	c.logger.Info("drawing cells", "count", count)
	c.view.DrawCells(count, c.OnCellClick)
}

func (c *Controller) cellURL(cellID int) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("cell", strconv.Itoa(cellID))
	u.RawQuery = q.Encode()
	return u.String()
}

// OnCellClick asks the server for the color of cellID. It is the click
// handler handed to View.DrawCells.
func (c *Controller) OnCellClick(cellID int) {
	c.mu.Lock()
	if cellID < 0 || cellID >= c.count {
		c.mu.Unlock()
		c.logger.Debug("ignoring click on unknown cell", "cell", cellID)
		return
	}
	if c.inFlight {
		c.mu.Unlock()
		c.logger.Debug("ignoring click while a request is outstanding", "cell", cellID)
		return
	}
	if sel, ok := c.model.Selected(); ok && sel.CellID == cellID {
		c.mu.Unlock()
		c.logger.Debug("ignoring click on selected cell", "cell", cellID)
		return
	}
	c.flushPendingHide()
	c.inFlight = true
	target := c.cellURL(cellID)
	c.mu.Unlock()

	c.transport.Send(c.ctx, target, c.onCellColor(cellID), func(err error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.inFlight = false
		c.fail(err, func() { c.OnCellClick(cellID) })
	})
}

func (c *Controller) onCellColor(cellID int) func(string) {
	return func(body string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.inFlight = false

		color := strings.TrimSpace(body)
		if color == "" {
			c.fail(&TransportError{URL: c.cellURL(cellID), Err: fmt.Errorf("%w: empty color for cell %d", ErrMalformedResponse, cellID)}, func() { c.OnCellClick(cellID) })
			return
		}
		c.clearError()

		sel, ok := c.model.Selected()
		switch {
		case !ok:
			c.model.Select(cellID, color)
			c.view.RevealCell(cellID, color)
		case sel.Color == color:
			c.view.RevealCell(cellID, color)
			c.model.Unselect()
			c.logger.Info("matched", "cells", []int{sel.CellID, cellID}, "color", color)
		default:
			c.view.RevealCell(cellID, color)
			c.scheduleHide(sel.CellID, cellID)
			c.model.Unselect()
		}
	}
}

// scheduleHide covers both cells of a mismatched pair after the hide delay.
// Must be called with c.mu held.
func (c *Controller) scheduleHide(first, second int) {
	if c.hideDelay <= 0 {
		c.view.HideCell(first)
		c.view.HideCell(second)
		return
	}
	h := &pendingHide{cellIDs: [2]int{first, second}}
	c.pendingHide = h
	h.timer = c.clock.AfterFunc(c.hideDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// A flushed hide has already run.
		if c.pendingHide != h {
			return
		}
		c.pendingHide = nil
		c.view.HideCell(first)
		c.view.HideCell(second)
	})
}

// flushPendingHide runs a scheduled hide now. Must be called with c.mu held.
func (c *Controller) flushPendingHide() {
	h := c.pendingHide
	if h == nil {
		return
	}
	c.pendingHide = nil
	h.timer.Stop()
	c.view.HideCell(h.cellIDs[0])
	c.view.HideCell(h.cellIDs[1])
}

// fail reports err and remembers how to retry. Must be called with c.mu held.
func (c *Controller) fail(err error, retry func()) {
	c.logger.Warn("request failed", "err", err)
	c.retry = retry
	c.showingErr = true
	c.view.DisplayError(err)
}

func (c *Controller) clearError() {
	c.retry = nil
	if c.showingErr {
		c.showingErr = false
		c.view.DisplayError(nil)
	}
}
