package stream

import (
	"sync"

	"aetheris-dashboard/internal/models"
)

// History keeps the most recent vitals frames, oldest first.
type History struct {
	mu     sync.RWMutex
	frames []models.VitalsFrame
	size   int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 20
	}
	return &History{size: size, frames: make([]models.VitalsFrame, 0, size)}
}

func (h *History) Add(frame models.VitalsFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) == h.size {
		copy(h.frames, h.frames[1:])
		h.frames = h.frames[:h.size-1]
	}
	h.frames = append(h.frames, frame)
}

// Snapshot returns a copy safe to hold after further Adds.
func (h *History) Snapshot() []models.VitalsFrame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.VitalsFrame{}, h.frames...)
}

// Latest returns the newest frame, if any.
func (h *History) Latest() (models.VitalsFrame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.frames) == 0 {
		return models.VitalsFrame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

func (h *History) Reset() {
	h.mu.Lock()
	h.frames = h.frames[:0]
	h.mu.Unlock()
}
