package analysis

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	domain "roboadvisor/models"
	"roboadvisor/pkg/llm"
	"roboadvisor/pkg/models"
	"roboadvisor/pkg/repository"
)

// MockProvider 模拟大模型
type MockProvider struct {
	mock.Mock
	mu           sync.Mutex
	temperatures []float32 // 每次调用的温度，未覆盖时为 -1
}

func (m *MockProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.temperatures = append(m.temperatures, llm.TemperatureFrom(ctx, -1))
	m.mu.Unlock()
	args := m.Called(systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Name() string { return "mock" }

// memoryStore 内存版数据访问
type memoryStore struct {
	mu        sync.Mutex
	holdings  map[uint][]models.PortfolioHolding
	watchlist map[uint][]models.WatchlistItem
	profiles  map[uint]*domain.Profile
	history   []models.AnalysisHistory
	insertErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		holdings:  map[uint][]models.PortfolioHolding{},
		watchlist: map[uint][]models.WatchlistItem{},
		profiles:  map[uint]*domain.Profile{},
	}
}

func (s *memoryStore) ListHoldings(_ context.Context, userID uint) ([]models.PortfolioHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PortfolioHolding(nil), s.holdings[userID]...), nil
}

func (s *memoryStore) GetHolding(_ context.Context, userID, id uint) (*models.PortfolioHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.holdings[userID] {
		if h.ID == id {
			h := h
			return &h, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) ListWatchlist(_ context.Context, userID uint) ([]models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WatchlistItem(nil), s.watchlist[userID]...), nil
}

func (s *memoryStore) GetWatchlistItem(_ context.Context, userID, id uint) (*models.WatchlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchlist[userID] {
		if w.ID == id {
			w := w
			return &w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryStore) GetProfile(_ context.Context, userID uint) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID], nil
}

func (s *memoryStore) InsertHistory(_ context.Context, records []models.AnalysisHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for i := range records {
		if err := records[i].ValidateSubject(); err != nil {
			return err
		}
	}
	s.history = append(s.history, records...)
	return nil
}

func (s *memoryStore) records() []models.AnalysisHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AnalysisHistory(nil), s.history...)
}

type publishedEvent struct {
	userID    uint
	eventType string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) PublishToUser(userID uint, eventType string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{userID: userID, eventType: eventType})
}
