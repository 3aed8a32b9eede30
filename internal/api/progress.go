package api

import (
	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/models"
	"github.com/CFabianPBB/budget-allocation-app/internal/ws"
)

// hubObserver forwards pipeline progress for one run to websocket clients.
type hubObserver struct {
	hub    *ws.Hub
	runID  string
	logger *zap.Logger
}

var _ allocation.Observer = (*hubObserver)(nil)

// newHubObserver returns an observer for runID. With a nil hub every event
// is dropped.
func newHubObserver(hub *ws.Hub, runID string, logger *zap.Logger) *hubObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hubObserver{hub: hub, runID: runID, logger: logger}
}

func (o *hubObserver) publish(event ws.Event) {
	if o.hub == nil {
		return
	}
	event.RunID = o.runID
	if err := o.hub.Publish(event); err != nil {
		o.logger.Warn("failed to publish progress event",
			zap.String("run_id", o.runID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

func (o *hubObserver) DepartmentStarted(department string, budget float64, programs, chunks int) {
	o.publish(ws.Event{
		Type:       ws.MessageDepartmentStarted,
		Department: department,
		Budget:     budget,
		Programs:   programs,
		Chunks:     chunks,
	})
}

func (o *hubObserver) ChunkAllocated(department string, outcome allocation.ChunkOutcome) {
	event := ws.Event{
		Type:       ws.MessageChunkAllocated,
		Department: department,
		Chunk:      outcome.Index + 1,
		Chunks:     outcome.Count,
		Programs:   outcome.Programs,
		Budget:     outcome.Budget,
		Source:     string(outcome.Source),
	}
	if outcome.Err != nil {
		event.Error = outcome.Err.Error()
	}
	o.publish(event)
}

func (o *hubObserver) DepartmentCompleted(department string, rows []models.AllocationResult) {
	var total float64
	for _, row := range rows {
		total += row.TotalCost
	}
	o.publish(ws.Event{
		Type:       ws.MessageDepartmentCompleted,
		Department: department,
		Programs:   len(rows),
		Budget:     total,
	})
}

func (o *hubObserver) RunCompleted(summary allocation.Summary) {
	o.publish(ws.Event{Type: ws.MessageRunCompleted, Summary: summary})
}

func (o *hubObserver) runStarted(programs int) {
	o.publish(ws.Event{Type: ws.MessageRunStarted, Programs: programs})
}

func (o *hubObserver) runFailed(err error) {
	o.publish(ws.Event{Type: ws.MessageRunFailed, Error: err.Error()})
}
