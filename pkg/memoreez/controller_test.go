package memoreez

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

const endpoint = "http://memoreez.test/memoreez"

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func cellURL(id int) string {
	return fmt.Sprintf("%s?cell=%d", endpoint, id)
}

type pendingRequest struct {
	url     string
	onLoad  func(string)
	onError func(error)
}

// queueTransport holds every request until the test settles it.
type queueTransport struct {
	requests []*pendingRequest
}

func (t *queueTransport) Send(_ context.Context, url string, onLoad func(string), onError func(error)) {
	t.requests = append(t.requests, &pendingRequest{url: url, onLoad: onLoad, onError: onError})
}

func (t *queueTransport) next() *pendingRequest {
	Expect(t.requests).NotTo(BeEmpty(), "no outstanding request")
	r := t.requests[0]
	t.requests = t.requests[1:]
	return r
}

type cellState struct {
	color    string
	revealed bool
}

// gridView keeps the cells in memory and only forwards clicks on hidden ones.
// Delayed hides arrive from timer goroutines, so cell access is locked.
type gridView struct {
	mu      sync.Mutex
	cells   []cellState
	onClick func(int)
	errs    []error
}

func (v *gridView) DrawCells(count int, onClick func(int)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cells = make([]cellState, count)
	v.onClick = onClick
}

func (v *gridView) RevealCell(id int, color string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cells[id] = cellState{color: color, revealed: true}
}

func (v *gridView) HideCell(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cells[id] = cellState{}
}

func (v *gridView) DisplayError(err error) {
	v.errs = append(v.errs, err)
}

func (v *gridView) cell(id int) cellState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cells[id]
}

func (v *gridView) revealed(id int) func() bool {
	return func() bool { return v.cell(id).revealed }
}

func (v *gridView) click(id int) {
	v.mu.Lock()
	revealed := v.cells[id].revealed
	onClick := v.onClick
	v.mu.Unlock()
	if !revealed {
		onClick(id)
	}
}

var _ = Describe("Controller", func() {
	var (
		transport *queueTransport
		view      *gridView
		fakeClock *clockwork.FakeClock
		ctrl      *Controller
	)

	start := func() {
		var err error
		ctrl, err = New(context.Background(), endpoint, transport, view,
			WithClock(fakeClock), WithLogger(discardLogger))
		Expect(err).NotTo(HaveOccurred())
	}

	startWithCount := func(count int) {
		start()
		req := transport.next()
		Expect(req.url).To(Equal(endpoint))
		req.onLoad(strconv.Itoa(count))
	}

	answer := func(id int, color string) {
		view.click(id)
		req := transport.next()
		Expect(req.url).To(Equal(cellURL(id)))
		req.onLoad(color)
	}

	expectNoSelection := func() {
		_, ok := ctrl.State()
		Expect(ok).To(BeFalse())
	}

	// waitForHide blocks until the controller has armed a hide timer.
	waitForHide := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(fakeClock.BlockUntilContext(ctx, 1)).To(Succeed())
	}

	BeforeEach(func() {
		transport = &queueTransport{}
		view = &gridView{}
		fakeClock = clockwork.NewFakeClockAt(epoch)
	})

	It("should reject an unparsable endpoint", func() {
		_, err := New(context.Background(), "http://[::1", transport, view)
		Expect(err).To(HaveOccurred())
		Expect(transport.requests).To(BeEmpty())
	})

	It("should request the cell count on construction", func() {
		start()
		Expect(transport.requests).To(HaveLen(1))
		Expect(transport.requests[0].url).To(Equal(endpoint))
		Expect(view.cells).To(BeNil())
	})

	It("should draw as many cells as the server reports", func() {
		startWithCount(16)
		Expect(view.cells).To(HaveLen(16))
		expectNoSelection()
	})

	It("should draw zero cells for a count of zero", func() {
		startWithCount(0)
		Expect(view.cells).To(BeEmpty())
		Expect(view.cells).NotTo(BeNil())
		expectNoSelection()
	})

	It("should tolerate whitespace around the count", func() {
		start()
		transport.next().onLoad(" 4\n")
		Expect(view.cells).To(HaveLen(4))
	})

	It("should select the first revealed cell", func() {
		startWithCount(4)
		answer(2, "red")

		sel, ok := ctrl.State()
		Expect(ok).To(BeTrue())
		Expect(sel).To(Equal(Selection{CellID: 2, Color: "red"}))
		Expect(view.cell(2)).To(Equal(cellState{color: "red", revealed: true}))
	})

	It("should keep a matching pair revealed", func() {
		startWithCount(4)
		answer(2, "red")
		answer(0, "red")

		expectNoSelection()
		Expect(view.cell(0)).To(Equal(cellState{color: "red", revealed: true}))
		Expect(view.cell(2)).To(Equal(cellState{color: "red", revealed: true}))

		fakeClock.Advance(time.Minute)
		Consistently(view.revealed(0), 50*time.Millisecond).Should(BeTrue())
		Consistently(view.revealed(2), 50*time.Millisecond).Should(BeTrue())
	})

	It("should hide a mismatched pair after the hide delay", func() {
		startWithCount(4)
		answer(1, "blue")
		sel, ok := ctrl.State()
		Expect(ok).To(BeTrue())
		Expect(sel).To(Equal(Selection{CellID: 1, Color: "blue"}))

		answer(3, "green")
		expectNoSelection()
		Expect(view.cell(1)).To(Equal(cellState{color: "blue", revealed: true}))
		Expect(view.cell(3)).To(Equal(cellState{color: "green", revealed: true}))
		waitForHide()

		fakeClock.Advance(DefaultHideDelay - time.Millisecond)
		Consistently(view.revealed(1), 50*time.Millisecond).Should(BeTrue())
		Expect(view.cell(3).revealed).To(BeTrue())
		expectNoSelection()

		fakeClock.Advance(time.Millisecond)
		Eventually(view.revealed(1)).Should(BeFalse())
		Eventually(view.revealed(3)).Should(BeFalse())
		Expect(view.cell(1)).To(Equal(cellState{}))
		expectNoSelection()
	})

	It("should let hidden cells be clicked again", func() {
		startWithCount(4)
		answer(1, "blue")
		answer(3, "green")
		fakeClock.Advance(DefaultHideDelay)
		Eventually(view.revealed(1)).Should(BeFalse())

		answer(1, "blue")
		sel, ok := ctrl.State()
		Expect(ok).To(BeTrue())
		Expect(sel.CellID).To(Equal(1))
	})

	It("should flush a pending hide when the next click is accepted", func() {
		startWithCount(4)
		answer(0, "blue")
		answer(1, "green")
		waitForHide()

		view.click(2)
		Expect(view.cell(0).revealed).To(BeFalse())
		Expect(view.cell(1).revealed).To(BeFalse())

		transport.next().onLoad("green")
		answer(1, "green")
		fakeClock.Advance(time.Minute)
		Consistently(view.revealed(1), 50*time.Millisecond).Should(BeTrue())
		Expect(view.cell(1)).To(Equal(cellState{color: "green", revealed: true}))
		Expect(view.cell(2)).To(Equal(cellState{color: "green", revealed: true}))
	})

	It("should ignore clicks while a request is outstanding", func() {
		startWithCount(4)
		view.click(0)
		view.click(1)
		Expect(transport.requests).To(HaveLen(1))

		transport.next().onLoad("red")
		view.click(1)
		Expect(transport.requests).To(HaveLen(1))
		Expect(transport.requests[0].url).To(Equal(cellURL(1)))
	})

	It("should ignore clicks outside the board", func() {
		startWithCount(2)
		ctrl.OnCellClick(-1)
		ctrl.OnCellClick(2)
		Expect(transport.requests).To(BeEmpty())
	})

	It("should ignore a second click on the selected cell", func() {
		startWithCount(2)
		answer(0, "red")
		ctrl.OnCellClick(0)
		Expect(transport.requests).To(BeEmpty())
	})

	It("should hide immediately when the hide delay is zero", func() {
		var err error
		ctrl, err = New(context.Background(), endpoint, transport, view,
			WithClock(fakeClock), WithLogger(discardLogger), WithHideDelay(0))
		Expect(err).NotTo(HaveOccurred())
		transport.next().onLoad("2")

		answer(0, "red")
		answer(1, "blue")
		Expect(view.cell(0)).To(Equal(cellState{}))
		Expect(view.cell(1)).To(Equal(cellState{}))
	})

	Context("when requests fail", func() {
		It("should surface a failed count request and retry it", func() {
			start()
			failure := &TransportError{URL: endpoint, StatusCode: 503}
			transport.next().onError(failure)
			Expect(view.errs).To(Equal([]error{failure}))
			Expect(view.cells).To(BeNil())

			ctrl.Retry()
			req := transport.next()
			Expect(req.url).To(Equal(endpoint))
			req.onLoad("4")
			Expect(view.cells).To(HaveLen(4))
			Expect(view.errs).To(Equal([]error{failure, nil}))
		})

		It("should report a malformed count", func() {
			start()
			transport.next().onLoad("sixteen")
			Expect(view.errs).To(HaveLen(1))

			var te *TransportError
			Expect(errors.As(view.errs[0], &te)).To(BeTrue())
			Expect(errors.Is(view.errs[0], ErrMalformedResponse)).To(BeTrue())
			Expect(view.cells).To(BeNil())
		})

		It("should report a negative count", func() {
			start()
			transport.next().onLoad("-3")
			Expect(view.errs).To(HaveLen(1))
			Expect(errors.Is(view.errs[0], ErrMalformedResponse)).To(BeTrue())
		})

		It("should leave the turn state alone when a cell request fails", func() {
			startWithCount(4)
			answer(0, "red")

			view.click(1)
			transport.next().onError(errors.New("connection reset"))
			sel, ok := ctrl.State()
			Expect(ok).To(BeTrue())
			Expect(sel).To(Equal(Selection{CellID: 0, Color: "red"}))
			Expect(view.cell(1).revealed).To(BeFalse())
			Expect(view.errs).To(HaveLen(1))

			ctrl.Retry()
			req := transport.next()
			Expect(req.url).To(Equal(cellURL(1)))
			req.onLoad("red")
			Expect(view.cell(1)).To(Equal(cellState{color: "red", revealed: true}))
			expectNoSelection()
			Expect(view.errs).To(HaveLen(2))
			Expect(view.errs[1]).To(BeNil())
		})

		It("should accept new clicks after a failure", func() {
			startWithCount(4)
			view.click(1)
			transport.next().onError(errors.New("boom"))

			view.click(2)
			Expect(transport.requests).To(HaveLen(1))
			Expect(transport.requests[0].url).To(Equal(cellURL(2)))
		})

		It("should treat an empty color as a failure", func() {
			startWithCount(4)
			view.click(3)
			transport.next().onLoad("  ")
			Expect(view.cell(3).revealed).To(BeFalse())
			Expect(view.errs).To(HaveLen(1))
			Expect(errors.Is(view.errs[0], ErrMalformedResponse)).To(BeTrue())
			expectNoSelection()
		})

		It("should do nothing on retry without a failure", func() {
			startWithCount(4)
			ctrl.Retry()
			Expect(transport.requests).To(BeEmpty())
		})
	})

	It("should only ever hold a selection of a rendered cell", func() {
		const count = 8
		rng := rand.New(rand.NewSource(1))
		colors := []string{"red", "blue", "green"}
		startWithCount(count)

		for i := 0; i < 500; i++ {
			id := rng.Intn(count)
			if view.cell(id).revealed {
				fakeClock.Advance(DefaultHideDelay)
				continue
			}
			view.click(id)
			if len(transport.requests) == 0 {
				continue
			}
			transport.next().onLoad(colors[rng.Intn(len(colors))])

			if sel, ok := ctrl.State(); ok {
				Expect(sel.CellID).To(BeNumerically(">=", 0))
				Expect(sel.CellID).To(BeNumerically("<", count))
				Expect(view.cell(sel.CellID)).To(Equal(cellState{color: sel.Color, revealed: true}))
			}
		}
	})
})

var _ = Describe("Controller with mocks", func() {
	var (
		mockCtrl  *gomock.Controller
		transport *MockTransport
		view      *MockView
		fakeClock *clockwork.FakeClock
	)

	loadWith := func(body string) func(context.Context, string, func(string), func(error)) {
		return func(_ context.Context, _ string, onLoad func(string), _ func(error)) {
			onLoad(body)
		}
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		transport = NewMockTransport(mockCtrl)
		view = NewMockView(mockCtrl)
		fakeClock = clockwork.NewFakeClockAt(epoch)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should render zero cells for an empty board", func() {
		transport.EXPECT().Send(gomock.Any(), endpoint, gomock.Any(), gomock.Any()).Do(loadWith("0"))
		view.EXPECT().DrawCells(0, gomock.Any())

		ctrl, err := New(context.Background(), endpoint, transport, view,
			WithClock(fakeClock), WithLogger(discardLogger))
		Expect(err).NotTo(HaveOccurred())
		_, ok := ctrl.State()
		Expect(ok).To(BeFalse())
	})

	It("should reveal then hide a mismatched pair in order", func() {
		var onClick func(int)
		transport.EXPECT().Send(gomock.Any(), endpoint, gomock.Any(), gomock.Any()).Do(loadWith("4"))
		view.EXPECT().DrawCells(4, gomock.Any()).Do(func(_ int, f func(int)) { onClick = f })

		ctrl, err := New(context.Background(), endpoint, transport, view,
			WithClock(fakeClock), WithLogger(discardLogger))
		Expect(err).NotTo(HaveOccurred())

		hidden := make(chan struct{})
		gomock.InOrder(
			transport.EXPECT().Send(gomock.Any(), cellURL(1), gomock.Any(), gomock.Any()).Do(loadWith("blue")),
			view.EXPECT().RevealCell(1, "blue"),
			transport.EXPECT().Send(gomock.Any(), cellURL(3), gomock.Any(), gomock.Any()).Do(loadWith("green")),
			view.EXPECT().RevealCell(3, "green"),
			view.EXPECT().HideCell(1),
			view.EXPECT().HideCell(3).Do(func(int) { close(hidden) }),
		)

		onClick(1)
		onClick(3)
		_, ok := ctrl.State()
		Expect(ok).To(BeFalse())
		fakeClock.Advance(DefaultHideDelay)
		Eventually(hidden).Should(BeClosed())
	})

	It("should report transport errors to the view", func() {
		failure := &TransportError{URL: endpoint, Err: errors.New("connection refused")}
		transport.EXPECT().Send(gomock.Any(), endpoint, gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, _ string, _ func(string), onError func(error)) {
				onError(failure)
			})
		view.EXPECT().DisplayError(failure)

		_, err := New(context.Background(), endpoint, transport, view,
			WithClock(fakeClock), WithLogger(discardLogger))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("TransportError", func() {
	It("should describe a status failure", func() {
		err := &TransportError{URL: "http://x/memoreez", StatusCode: 404}
		Expect(err.Error()).To(Equal("request to http://x/memoreez failed with status 404"))
		Expect(errors.Unwrap(err)).To(BeNil())
	})

	It("should describe a network failure", func() {
		cause := errors.New("connection refused")
		err := &TransportError{URL: "http://x/memoreez", Err: cause}
		Expect(err.Error()).To(Equal("request to http://x/memoreez failed: connection refused"))
		Expect(errors.Is(err, cause)).To(BeTrue())
	})
})

var _ = Describe("Model", func() {
	It("should start with nothing selected", func() {
		m := NewModel()
		Expect(m.CellSelected()).To(BeFalse())
		_, ok := m.Selected()
		Expect(ok).To(BeFalse())
	})

	It("should hold exactly one selection", func() {
		m := NewModel()
		m.Select(1, "red")
		m.Select(2, "blue")
		Expect(m.CellSelected()).To(BeTrue())
		sel, ok := m.Selected()
		Expect(ok).To(BeTrue())
		Expect(sel).To(Equal(Selection{CellID: 2, Color: "blue"}))

		m.Unselect()
		Expect(m.CellSelected()).To(BeFalse())
	})
})
