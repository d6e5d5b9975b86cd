package engine

import "tremolo.click/internal/audio"

// positionTracker is the play head: which item is audible and how many
// seconds into it playback has advanced. Mutated only under the player
// mutex. A nil item with -1 seconds means nothing is audible.
type positionTracker struct {
	item    *audio.Item
	seconds float64
}

// clear marks that nothing is audible.
func (t *positionTracker) clear() {
	t.item = nil
	t.seconds = -1
}

// cleared reports whether the tracker holds no audible position.
func (t *positionTracker) cleared() bool {
	return t.item == nil
}

// set moves the play head to an item at the given offset in seconds.
func (t *positionTracker) set(item *audio.Item, seconds float64) {
	t.item = item
	t.seconds = seconds
}

// advance moves the position forward by dt seconds.
func (t *positionTracker) advance(dt float64) {
	t.seconds += dt
}
