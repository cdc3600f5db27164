package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/rs/xid"
)

// DefaultID is the id the single live board is stored under.
const DefaultID = "default"

// DefaultColors each appear on exactly two cells.
var DefaultColors = []string{"black", "blue", "brown", "green", "navy", "purple", "red", "yellow"}

// ErrNoSuchCell is returned for a position outside the board.
var ErrNoSuchCell = errors.New("no such cell")

// Service serves cell lookups for the live board. Lookups hit the cache first
// and fall back to the document; Repopulate swaps the board and empties the
// cache.
type Service struct {
	store  *Store
	colors []string
	logger *slog.Logger

	mu         sync.RWMutex
	rng        *rand.Rand
	doc        *automerge.Doc
	generation string
	count      int
	cache      *sync.Map
}

// NewService loads the stored board, populating and saving a fresh one if
// none exists. A nil rng is seeded randomly.
func NewService(ctx context.Context, store *Store, colors []string, rng *rand.Rand, logger *slog.Logger) (*Service, error) {
	if len(colors) == 0 {
		colors = DefaultColors
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		colors: append([]string(nil), colors...),
		rng:    rng,
		logger: logger,
		cache:  new(sync.Map),
	}

	doc, err := store.Load(ctx, DefaultID)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Info("no stored board, populating a new one")
		if _, err := s.Repopulate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, err
	}
	if err := s.adopt(doc); err != nil {
		return nil, err
	}
	s.logger.Info("loaded board", "generation", s.generation, "cells", s.count)
	return s, nil
}

// adopt makes doc the live board. Must be called with s.mu held for writing
// or before s is shared.
func (s *Service) adopt(doc *automerge.Doc) error {
	count, generation, err := readBoard(doc)
	if err != nil {
		return err
	}
	s.install(doc, count, generation)
	return nil
}

func (s *Service) install(doc *automerge.Doc, count int, generation string) {
	s.doc = doc
	s.count = count
	s.generation = generation
	s.cache = new(sync.Map)
}

func readBoard(doc *automerge.Doc) (int, string, error) {
	cells, err := automerge.As[[]string](doc.Path("cells").Get())
	if err != nil {
		return 0, "", fmt.Errorf("failed to read cells: %w", err)
	}
	generation, err := automerge.As[string](doc.Path("generation").Get())
	if err != nil {
		return 0, "", fmt.Errorf("failed to read generation: %w", err)
	}
	return len(cells), generation, nil
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Service) Generation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Service) Colors() []string {
	return append([]string(nil), s.colors...)
}

// Color returns the color at position.
func (s *Service) Color(position int) (string, error) {
	s.mu.RLock()
	cache := s.cache
	count := s.count
	s.mu.RUnlock()

	if position < 0 || position >= count {
		return "", ErrNoSuchCell
	}
	if cached, ok := cache.Load(position); ok {
		return cached.(string), nil
	}

	// automerge docs are not safe for concurrent reads.
	s.mu.Lock()
	defer s.mu.Unlock()
	color, err := automerge.As[string](s.doc.Path("cells", position).Get())
	if err != nil {
		return "", fmt.Errorf("failed to read cell %d: %w", position, err)
	}
	s.cache.Store(position, color)
	return color, nil
}

// Repopulate reshuffles the board under a new generation id, persists it and
// empties the cache. It returns the new generation. The change is made on a
// fork, so the live board is untouched unless the new one was saved.
func (s *Service) Repopulate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cells := Shuffle(s.colors, s.rng)
	generation := xid.New().String()

	doc := automerge.New()
	if s.doc != nil {
		fork, err := s.doc.Fork()
		if err != nil {
			return "", fmt.Errorf("failed to fork board: %w", err)
		}
		doc = fork
	}
	if err := doc.Path("cells").Set(cells); err != nil {
		return "", fmt.Errorf("failed to set cells: %w", err)
	}
	if err := doc.Path("generation").Set(generation); err != nil {
		return "", fmt.Errorf("failed to set generation: %w", err)
	}
	if _, err := doc.Commit("repopulate " + generation); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	count, generation, err := readBoard(doc)
	if err != nil {
		return "", err
	}
	if err := s.store.Save(ctx, DefaultID, doc); err != nil {
		return "", err
	}
	s.install(doc, count, generation)
	s.logger.Info("repopulated board", "generation", generation, "cells", count)
	return generation, nil
}

// Snapshot returns an independent copy of the board document.
func (s *Service) Snapshot() (*automerge.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fork, err := s.doc.Fork()
	if err != nil {
		return nil, fmt.Errorf("failed to fork board: %w", err)
	}
	return fork, nil
}

// Shuffle lays out every color twice. Each step draws a random remaining
// color and places it at the position equal to the number of colors still
// left to place.
func Shuffle(colors []string, rng *rand.Rand) []string {
	remaining := make([]string, 0, len(colors)*2)
	for _, c := range colors {
		remaining = append(remaining, c, c)
	}
	cells := make([]string, len(remaining))
	for len(remaining) > 0 {
		i := rng.Intn(len(remaining))
		color := remaining[i]
		remaining = append(remaining[:i], remaining[i+1:]...)
		cells[len(remaining)] = color
	}
	return cells
}
