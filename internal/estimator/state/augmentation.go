package state

import "github.com/google/uuid"

// augSlot is one entry in the augmented-landmark arena: either holding a
// live landmark's ID, or a tombstone left behind by Unaugment and waiting
// to be reclaimed by the next Augment.
type augSlot struct {
	active bool
	id     uuid.UUID
}

// AugmentationManager maintains the bijection between a limb's augmented
// landmark ID and its stable column/row offset in X and P. Per the
// project's arena design, removing a landmark leaves a tombstone rather
// than shifting every later landmark's offset down — so propagation and
// correction Jacobians, which cache offsets, never observe a landmark's
// position in the state vector change out from under them mid-cycle.
type AugmentationManager struct {
	slots    []augSlot
	index    map[uuid.UUID]int
	freeList []int
}

// NewAugmentationManager creates a manager with room for capacity
// simultaneously augmented landmarks.
func NewAugmentationManager(capacity int) *AugmentationManager {
	m := &AugmentationManager{
		slots: make([]augSlot, capacity),
		index: make(map[uuid.UUID]int, capacity),
	}
	for i := range m.slots {
		m.freeList = append(m.freeList, i)
	}
	return m
}

// Capacity returns the number of landmark slots the arena has room for.
func (m *AugmentationManager) Capacity() int { return len(m.slots) }

// Augment reserves a slot for id, reusing the oldest tombstone if one is
// available. It returns the slot index and false if the arena is full.
func (m *AugmentationManager) Augment(id uuid.UUID) (int, bool) {
	if _, exists := m.index[id]; exists {
		return m.index[id], true
	}
	if len(m.freeList) == 0 {
		return -1, false
	}
	slot := m.freeList[0]
	m.freeList = m.freeList[1:]
	m.slots[slot] = augSlot{active: true, id: id}
	m.index[id] = slot
	return slot, true
}

// Unaugment tombstones id's slot, making it eligible for reuse by a future
// Augment call. It returns the freed slot index and false if id was not
// augmented.
func (m *AugmentationManager) Unaugment(id uuid.UUID) (int, bool) {
	slot, ok := m.index[id]
	if !ok {
		return -1, false
	}
	m.slots[slot] = augSlot{}
	delete(m.index, id)
	m.freeList = append(m.freeList, slot)
	return slot, true
}

// SlotOf reports the slot index id currently occupies.
func (m *AugmentationManager) SlotOf(id uuid.UUID) (int, bool) {
	slot, ok := m.index[id]
	return slot, ok
}

// ActiveSlots returns the slot indices currently holding a live landmark,
// in ascending order.
func (m *AugmentationManager) ActiveSlots() []int {
	out := make([]int, 0, len(m.index))
	for i, s := range m.slots {
		if s.active {
			out = append(out, i)
		}
	}
	return out
}

// ActiveCount reports how many landmarks are currently augmented.
func (m *AugmentationManager) ActiveCount() int { return len(m.index) }

// Clone returns a deep copy of the manager, used by RobotState.Clone.
func (m *AugmentationManager) Clone() *AugmentationManager {
	out := &AugmentationManager{
		slots:    make([]augSlot, len(m.slots)),
		index:    make(map[uuid.UUID]int, len(m.index)),
		freeList: make([]int, len(m.freeList)),
	}
	copy(out.slots, m.slots)
	copy(out.freeList, m.freeList)
	for k, v := range m.index {
		out.index[k] = v
	}
	return out
}
