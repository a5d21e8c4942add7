package ws

import (
	"sync"

	"github.com/mattvy/chartgrid/internal/domain"
)

// Surface is the hub-side projection of one panel. Data pushed by the chart
// core is cached for replay to late-joining clients and broadcast to everyone
// connected; dimensions and viewports reported by clients are read back by
// the core through ContainerSize and VisibleRange.
type Surface struct {
	hub *Hub
	id  string

	mu      sync.Mutex
	width   int
	height  int
	sized   bool
	visible *domain.VisibleRange

	candles    []domain.Candle
	swings     []domain.LinePoint
	delta      float64
	failureMsg string
	failed     bool
}

// ID returns the panel id the surface was acquired with.
func (s *Surface) ID() string { return s.id }

// SetCandles caches and broadcasts the panel's candle series.
func (s *Surface) SetCandles(candles []domain.Candle) {
	s.mu.Lock()
	s.candles = candles
	s.mu.Unlock()

	s.hub.send(envelope{Type: "candles", Panel: s.id, Payload: candles})
}

// SetSwings caches and broadcasts the swing overlay line. A nil line clears
// the overlay on every client.
func (s *Surface) SetSwings(points []domain.LinePoint) {
	s.mu.Lock()
	s.swings = points
	s.mu.Unlock()

	s.hub.send(envelope{Type: "swings", Panel: s.id, Payload: points})
}

// SetPriceDelta caches and broadcasts the header price delta.
func (s *Surface) SetPriceDelta(delta float64) {
	s.mu.Lock()
	s.delta = delta
	s.mu.Unlock()

	s.hub.send(envelope{Type: "price_delta", Panel: s.id, Payload: delta})
}

// Resize broadcasts server-initiated dimensions, as happens when a saved
// layout is restored.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.sized = width > 0 && height > 0
	s.mu.Unlock()

	s.hub.send(envelope{Type: "resize", Panel: s.id, Payload: map[string]int{
		"width": width, "height": height,
	}})
}

// FitContent tells clients to fit the view to the full candle range.
func (s *Surface) FitContent() {
	s.mu.Lock()
	s.visible = nil
	s.mu.Unlock()

	s.hub.send(envelope{Type: "fit", Panel: s.id})
}

// VisibleRange returns the viewport the clients last reported, if any.
func (s *Surface) VisibleRange() (domain.VisibleRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible == nil {
		return domain.VisibleRange{}, false
	}
	return *s.visible, true
}

// SetVisibleRange broadcasts a server-restored viewport.
func (s *Surface) SetVisibleRange(vr domain.VisibleRange) {
	s.mu.Lock()
	s.visible = &vr
	s.mu.Unlock()

	s.hub.send(envelope{Type: "set_view", Panel: s.id, Payload: vr})
}

// ContainerSize reports the dimensions the clients last reported, falling
// back to the acquire-time size when nothing has been reported yet.
func (s *Surface) ContainerSize() (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, s.sized
}

// ShowFailure broadcasts a persistent failure indicator with the message.
func (s *Surface) ShowFailure(msg string) {
	s.mu.Lock()
	s.failed = true
	s.failureMsg = msg
	s.mu.Unlock()

	s.hub.send(envelope{Type: "failure", Panel: s.id, Payload: msg})
}

// ClearFailure removes the failure indicator.
func (s *Surface) ClearFailure() {
	s.mu.Lock()
	cleared := s.failed
	s.failed = false
	s.failureMsg = ""
	s.mu.Unlock()

	if cleared {
		s.hub.send(envelope{Type: "failure_cleared", Panel: s.id})
	}
}

// recordContainerSize stores client-reported dimensions without
// rebroadcasting them.
func (s *Surface) recordContainerSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	s.sized = true
}

// recordVisibleRange stores a client-reported viewport without
// rebroadcasting it.
func (s *Surface) recordVisibleRange(vr domain.VisibleRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = &vr
}

// stateEnvelopes snapshots the cached panel state as the envelope sequence a
// late-joining client needs to render the panel.
func (s *Surface) stateEnvelopes() []envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	envs := []envelope{
		{Type: "panel_added", Panel: s.id, Payload: map[string]int{
			"width": s.width, "height": s.height,
		}},
	}
	if s.candles != nil {
		envs = append(envs, envelope{Type: "candles", Panel: s.id, Payload: s.candles})
		envs = append(envs, envelope{Type: "swings", Panel: s.id, Payload: s.swings})
		envs = append(envs, envelope{Type: "price_delta", Panel: s.id, Payload: s.delta})
	}
	if s.failed {
		envs = append(envs, envelope{Type: "failure", Panel: s.id, Payload: s.failureMsg})
	}
	return envs
}

// Compile-time interface check.
var _ domain.RenderSurface = (*Surface)(nil)
