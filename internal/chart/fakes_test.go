package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mattvy/chartgrid/internal/domain"
)

// fakeSource is a scriptable market data source. failures makes the next n
// Candles calls fail; failAlways makes every call fail. A non-nil gate blocks
// the next Candles call until the channel is closed.
type fakeSource struct {
	mu         sync.Mutex
	candles    []domain.Candle
	trades     []domain.Trade
	failures   int
	failAlways bool
	err        error
	calls      int
	gate       chan struct{}
}

var _ domain.MarketDataSource = (*fakeSource)(nil)

func (f *fakeSource) Candles(ctx context.Context, interval string, limit int) ([]domain.Candle, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.gate = nil
	fail := f.failAlways
	if f.failures > 0 {
		f.failures--
		fail = true
	}
	err := f.err
	candles := f.candles
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		if err == nil {
			err = errors.New("feed unavailable")
		}
		return nil, err
	}
	return candles, nil
}

func (f *fakeSource) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSurface records everything pushed to it.
type fakeSurface struct {
	mu             sync.Mutex
	id             string
	candles        []domain.Candle
	setCandleCalls int
	swings         []domain.LinePoint
	swingsSet      bool
	delta          float64
	width, height  int
	sized          bool
	visible        *domain.VisibleRange
	restored       []domain.VisibleRange
	fitCalls       int
	failureMsg     string
	failureShown   bool
}

var _ domain.RenderSurface = (*fakeSurface)(nil)

func (s *fakeSurface) ID() string { return s.id }

func (s *fakeSurface) SetCandles(candles []domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = candles
	s.setCandleCalls++
}

func (s *fakeSurface) SetSwings(points []domain.LinePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swings = points
	s.swingsSet = true
}

func (s *fakeSurface) SetPriceDelta(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delta = delta
}

func (s *fakeSurface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	s.sized = true
}

func (s *fakeSurface) FitContent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitCalls++
}

func (s *fakeSurface) VisibleRange() (domain.VisibleRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible == nil {
		return domain.VisibleRange{}, false
	}
	return *s.visible, true
}

func (s *fakeSurface) SetVisibleRange(vr domain.VisibleRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = &vr
	s.restored = append(s.restored, vr)
}

func (s *fakeSurface) ContainerSize() (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, s.sized
}

func (s *fakeSurface) ShowFailure(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureMsg = msg
	s.failureShown = true
}

func (s *fakeSurface) ClearFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureShown = false
}

func (s *fakeSurface) setViewport(vr domain.VisibleRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = &vr
}

func (s *fakeSurface) snapshot() fakeSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fakeSurface{
		id:             s.id,
		candles:        s.candles,
		setCandleCalls: s.setCandleCalls,
		swings:         s.swings,
		swingsSet:      s.swingsSet,
		delta:          s.delta,
		width:          s.width,
		height:         s.height,
		sized:          s.sized,
		restored:       s.restored,
		fitCalls:       s.fitCalls,
		failureMsg:     s.failureMsg,
		failureShown:   s.failureShown,
	}
}

// fakeProvider is an in-memory surface provider keyed by resource id.
type fakeProvider struct {
	mu         sync.Mutex
	surfaces   map[string]*fakeSurface
	acquireErr error
	detaches   int

	// onDetach, when set, observes each release before the binding is
	// dropped.
	onDetach func(id string)
}

var _ domain.SurfaceProvider = (*fakeProvider)(nil)

func (p *fakeProvider) Acquire(id string, width, height int) (domain.RenderSurface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	if p.surfaces == nil {
		p.surfaces = make(map[string]*fakeSurface)
	}
	if _, taken := p.surfaces[id]; taken {
		return nil, fmt.Errorf("surface %s already attached", id)
	}
	s := &fakeSurface{id: id, width: width, height: height}
	s.sized = width > 0 && height > 0
	p.surfaces[id] = s
	return s, nil
}

func (p *fakeProvider) Detach(s domain.RenderSurface) bool {
	if s == nil {
		return false
	}
	p.mu.Lock()
	onDetach := p.onDetach
	if _, attached := p.surfaces[s.ID()]; !attached {
		p.mu.Unlock()
		return false
	}
	delete(p.surfaces, s.ID())
	p.detaches++
	p.mu.Unlock()

	if onDetach != nil {
		onDetach(s.ID())
	}
	return true
}

func (p *fakeProvider) FindByID(id string) (domain.RenderSurface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, attached := p.surfaces[id]
	if !attached {
		return nil, false
	}
	return s, true
}

func (p *fakeProvider) surface(id string) (*fakeSurface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, attached := p.surfaces[id]
	return s, attached
}

func (p *fakeProvider) attachedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.surfaces)
}

// memStore is an in-memory layout store.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
	sets   int
}

var _ domain.LayoutStore = (*memStore)(nil)

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, found := m.values[key]
	if !found {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	m.sets++
	return nil
}

func (m *memStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memStore) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, found := m.values[key]
	return v, found
}
