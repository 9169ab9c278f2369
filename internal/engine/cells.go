package engine

import (
	"sync"
	"time"
)

// Cell is the latest write-back into one output component.
type Cell struct {
	RunID           string    `json:"runId"`
	FunctionalityID string    `json:"functionalityId"`
	Content         string    `json:"content"`
	WrittenAt       time.Time `json:"writtenAt"`
	Seq             uint64    `json:"seq"`
}

// Cells holds one latest-result cell per workspace output. Writes are never
// merged or rejected: whichever run writes last is what readers see.
type Cells struct {
	mu    sync.RWMutex
	seq   uint64
	cells map[string]Cell
}

func NewCells() *Cells {
	return &Cells{cells: make(map[string]Cell)}
}

// Store replaces the cell and returns it with its sequence number set.
func (c *Cells) Store(workspace, outputID string, cell Cell) Cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	cell.Seq = c.seq
	c.cells[workspace+":"+outputID] = cell
	return cell
}

// Latest returns the last write-back into outputID.
func (c *Cells) Latest(workspace, outputID string) (Cell, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cell, ok := c.cells[workspace+":"+outputID]
	return cell, ok
}
