package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gala/internal/types"
)

var (
	planUser        string
	planBudget      float64
	planGuests      int
	planStyle       string
	planLocation    string
	planDate        string
	planDescription string
	planKeywords    []string
	planSeedURLs    []string
	planCriteria    string
	planMetricsAddr string
	planWait        time.Duration
	planCorrect     string
	planConflicts   []string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning session end to end",
	Long: `Distributes the total budget across venue, catering, and decoration,
searches each category against the knowledge graph, and prints the final
plan. Criteria come from flags or from a JSON file (--criteria); flags win
on overlap.

With --correct, an earlier session is forked instead: its archived plan is
kept except for the categories named in --conflict, which are re-planned.

Example:
  gala plan --user ana --budget 30000 --guests 120 --style rustic`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planUser, "user", "", "user id (required unless --criteria provides one)")
	planCmd.Flags().Float64Var(&planBudget, "budget", 0, "total event budget")
	planCmd.Flags().IntVar(&planGuests, "guests", 0, "expected guest count")
	planCmd.Flags().StringVar(&planStyle, "style", "", "event style (rustic, elegant, modern, classic, beach)")
	planCmd.Flags().StringVar(&planLocation, "location", "", "preferred location")
	planCmd.Flags().StringVar(&planDate, "date", "", "event date (YYYY-MM-DD)")
	planCmd.Flags().StringVar(&planDescription, "description", "", "free-text event description")
	planCmd.Flags().StringSliceVar(&planKeywords, "keyword", nil, "search keyword, applied to every category (repeatable)")
	planCmd.Flags().StringArrayVar(&planSeedURLs, "seed-url", nil, "vendor page as category=url (repeatable)")
	planCmd.Flags().StringVar(&planCriteria, "criteria", "", "JSON file with full planning criteria")
	planCmd.Flags().StringVar(&planMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address for the run")
	planCmd.Flags().DurationVar(&planWait, "wait", 5*time.Minute, "maximum time to wait for the final plan")
	planCmd.Flags().StringVar(&planCorrect, "correct", "", "session id to fork and correct")
	planCmd.Flags().StringArrayVar(&planConflicts, "conflict", nil, "category to re-plan when correcting (repeatable)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planMetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = planMetricsAddr
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	finals := make(chan types.Message, 1)
	rt.bus.Register(types.EndpointUser, func(msg types.Message) *types.Message {
		if msg.Kind == types.KindFinalResponse {
			select {
			case finals <- msg:
			default:
			}
		}
		return nil
	})

	var reply *types.Message
	if planCorrect != "" {
		reply = rt.planner.Receive(correctionRequest())
	} else {
		criteria, err := buildCriteria()
		if err != nil {
			return err
		}
		reply = rt.planner.Receive(types.NewMessage(types.EndpointUser, types.EndpointPlanner, "", types.UserRequestBody{
			Criteria: criteria,
		}))
	}
	if reply == nil {
		return fmt.Errorf("planner returned no acknowledgement")
	}
	if errBody, ok := reply.Body.(types.ErrorBody); ok {
		return fmt.Errorf("request rejected: %s", errBody.Reason)
	}
	ack, ok := reply.Body.(types.AckBody)
	if !ok {
		return fmt.Errorf("unexpected %s reply from planner", reply.Kind)
	}
	fmt.Println(faintStyle.Render("session " + ack.SessionID + ": " + ack.Note))
	logger.Info("session accepted", zap.String("session", ack.SessionID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case msg := <-finals:
		final, ok := msg.Body.(types.FinalBody)
		if !ok {
			return fmt.Errorf("unexpected final payload %T", msg.Body)
		}
		rt.planner.Wait()
		fmt.Println()
		fmt.Print(renderSummary(final.Summary))
		printBudgetRationale(rt, final.Summary)
		return nil
	case sig := <-sigCh:
		return fmt.Errorf("interrupted by %s before the plan finished", sig)
	case <-time.After(planWait):
		return fmt.Errorf("no final plan within %s", planWait)
	}
}

// buildCriteria merges the optional criteria file with the flag values;
// flags override the file field by field.
func buildCriteria() (types.Criteria, error) {
	var criteria types.Criteria
	if planCriteria != "" {
		data, err := os.ReadFile(planCriteria)
		if err != nil {
			return criteria, fmt.Errorf("read criteria: %w", err)
		}
		if err := json.Unmarshal(data, &criteria); err != nil {
			return criteria, fmt.Errorf("parse criteria: %w", err)
		}
	}

	if planUser != "" {
		criteria.UserID = planUser
	}
	if planBudget > 0 {
		criteria.TotalBudget = planBudget
	}
	if planGuests > 0 {
		criteria.GuestCount = planGuests
	}
	if planStyle != "" {
		criteria.Style = planStyle
	}
	if planLocation != "" {
		criteria.Location = planLocation
	}
	if planDate != "" {
		criteria.EventDate = planDate
	}
	if planDescription != "" {
		criteria.Description = planDescription
	}
	if criteria.Description == "" && criteria.Style != "" {
		criteria.Description = criteria.Style + " event"
	}

	if len(planKeywords) > 0 {
		if criteria.Categories == nil {
			criteria.Categories = make(map[types.Category]*types.CategoryCriteria)
		}
		for _, cat := range types.Categories() {
			cc := criteria.Categories[cat]
			if cc == nil {
				cc = &types.CategoryCriteria{}
				criteria.Categories[cat] = cc
			}
			cc.Keywords = append(cc.Keywords, planKeywords...)
		}
	}

	for _, pair := range planSeedURLs {
		cat, url, ok := strings.Cut(pair, "=")
		if !ok {
			return criteria, fmt.Errorf("seed-url %q: want category=url", pair)
		}
		c := types.Category(strings.TrimSpace(cat))
		if !c.Valid() {
			return criteria, fmt.Errorf("seed-url %q: unknown category %q", pair, cat)
		}
		if criteria.SeedURLs == nil {
			criteria.SeedURLs = make(map[types.Category][]string)
		}
		criteria.SeedURLs[c] = append(criteria.SeedURLs[c], strings.TrimSpace(url))
	}

	return criteria, nil
}

func correctionRequest() types.Message {
	cats := make([]types.Category, 0, len(planConflicts))
	for _, c := range planConflicts {
		cats = append(cats, types.Category(strings.TrimSpace(c)))
	}
	return types.NewMessage(types.EndpointUser, types.EndpointPlanner, planCorrect, types.CorrectionBody{
		OriginalSessionID: planCorrect,
		UserID:            planUser,
		Categories:        cats,
	})
}

func printBudgetRationale(rt *runtime, sum types.PlanSummary) {
	assigned := make(map[types.Category]int, len(sum.Selections))
	for cat, sel := range sum.Selections {
		assigned[cat] = sel.Assigned
	}
	if len(assigned) == 0 {
		return
	}
	fmt.Println(headerStyle.Render("BUDGET"))
	fmt.Println(faintStyle.Render(rt.dist.Explain(planUser, assigned)))
}
