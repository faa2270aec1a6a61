package scene

import "anchorsync/pkg"

// PlacementSession holds the task waiting for a placement tap.
// At most one task is selected; selecting again replaces it.
type PlacementSession struct {
	task   pkg.Task
	active bool
}

// Select makes task the pending placement, replacing any earlier selection
func (p *PlacementSession) Select(task pkg.Task) {
	p.task = task
	p.active = true
}

// Clear ends the session
func (p *PlacementSession) Clear() {
	p.task = pkg.Task{}
	p.active = false
}

// Active reports whether a task is awaiting placement
func (p *PlacementSession) Active() bool {
	return p.active
}

// Task returns the selected task
func (p *PlacementSession) Task() (pkg.Task, bool) {
	return p.task, p.active
}
