package agents

import (
	"context"
	"fmt"
	"time"

	"gala/internal/logging"
	"gala/internal/types"
)

// Handler adapts the worker to the bus: task messages for the worker's
// search or correction type run the pipeline and come back as agent_response
// (or error, with the original task id). Panics are already converted to
// error replies by the bus.
func (w *Worker) Handler() func(types.Message) *types.Message {
	return func(msg types.Message) *types.Message {
		task, ok := msg.Body.(types.TaskBody)
		if !ok {
			logging.AgentsWarn("%s: ignoring %s message from %s", w.category, msg.Kind, msg.From)
			return nil
		}
		cat, ok := task.Type.Category()
		if !ok || cat != w.category {
			reply := types.NewMessage(string(w.category), msg.From, msg.SessionID, types.ErrorBody{
				TaskID: task.TaskID,
				Type:   task.Type,
				Reason: fmt.Sprintf("task type %s not handled by %s worker", task.Type, w.category),
			})
			return &reply
		}

		start := time.Now()
		req := ParseRequest(task.Params)
		candidates, err := w.SearchGraph(context.Background(), w.resolveGraph(task.GraphData), req)
		if err != nil {
			logging.AgentsWarn("%s task %s failed: %v", w.category, task.TaskID, err)
			reply := types.NewMessage(string(w.category), msg.From, msg.SessionID, types.ErrorBody{
				TaskID: task.TaskID,
				Type:   task.Type,
				Reason: err.Error(),
			})
			return &reply
		}

		reply := types.NewMessage(string(w.category), msg.From, msg.SessionID, types.ResponseBody{
			TaskID:  task.TaskID,
			Type:    task.Type,
			Result:  candidates,
			Elapsed: time.Since(start),
		})
		return &reply
	}
}
