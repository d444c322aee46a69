package budget

import (
	"context"
	"fmt"
	"time"

	"gala/internal/logging"
	"gala/internal/types"
)

// Handler adapts the distributor to the bus. Distribution tasks come back as
// agent_response carrying map[Category]int; anything unparseable becomes an
// error reply with the original task id.
func (d *Distributor) Handler() func(types.Message) *types.Message {
	return func(msg types.Message) *types.Message {
		task, ok := msg.Body.(types.TaskBody)
		if !ok {
			logging.BudgetWarn("ignoring %s message from %s", msg.Kind, msg.From)
			return nil
		}
		if task.Type != types.TaskBudgetDistribution {
			reply := types.NewMessage(types.EndpointBudget, msg.From, msg.SessionID, types.ErrorBody{
				TaskID: task.TaskID,
				Type:   task.Type,
				Reason: fmt.Sprintf("task type %s not handled by the budget distributor", task.Type),
			})
			return &reply
		}

		userID := task.Params.String("user_id")
		total, ok := task.Params.Int("total_budget")
		if !ok {
			reply := types.NewMessage(types.EndpointBudget, msg.From, msg.SessionID, types.ErrorBody{
				TaskID: task.TaskID,
				Type:   task.Type,
				Reason: "total_budget parameter missing",
			})
			return &reply
		}

		start := time.Now()
		split, err := d.Distribute(context.Background(), userID, total, task.Params.String("description"))
		if err != nil {
			reply := types.NewMessage(types.EndpointBudget, msg.From, msg.SessionID, types.ErrorBody{
				TaskID: task.TaskID,
				Type:   task.Type,
				Reason: err.Error(),
			})
			return &reply
		}

		reply := types.NewMessage(types.EndpointBudget, msg.From, msg.SessionID, types.ResponseBody{
			TaskID:  task.TaskID,
			Type:    task.Type,
			Result:  split,
			Elapsed: time.Since(start),
		})
		return &reply
	}
}
