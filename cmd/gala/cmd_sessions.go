package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gala/internal/memory"
	"gala/internal/trace"
)

var sessionUser string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "List and inspect planning sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := memory.NewSessionStore(cfg.MemoryDir())

		records := store.List()
		if sessionUser != "" {
			records = store.ForUser(sessionUser)
		}
		if len(records) == 0 {
			fmt.Println(faintStyle.Render("no sessions"))
			return nil
		}

		rows := [][]string{{"SESSION", "USER", "STATUS", "CREATED", "LAST ACTIVITY"}}
		for _, rec := range records {
			rows = append(rows, []string{
				rec.SessionID,
				rec.UserID,
				styleStatus(rec.Status),
				rec.CreatedAt.Local().Format(time.DateTime),
				rec.LastActivity.Local().Format(time.DateTime),
			})
		}
		fmt.Print(renderTable(rows))
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session's beliefs and task history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]

		store := memory.NewSessionStore(cfg.MemoryDir())
		rec, ok := store.Get(sessionID)
		if !ok {
			return fmt.Errorf("session %s not found", sessionID)
		}

		fmt.Println(titleStyle.Render("Session "+rec.SessionID) + "  " + styleStatus(rec.Status))
		fmt.Printf("user %s, created %s\n\n", rec.UserID, rec.CreatedAt.Local().Format(time.DateTime))

		if len(rec.Beliefs) > 0 {
			fmt.Println(headerStyle.Render("BELIEFS"))
			pretty, err := json.MarshalIndent(rec.Beliefs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			fmt.Println()
		}

		if !cfg.Trace.Enabled {
			return nil
		}
		ts, err := trace.Open(cfg.TraceDBPath())
		if err != nil {
			return fmt.Errorf("open trace store: %w", err)
		}
		defer ts.Close()

		events, err := ts.SessionEvents(sessionID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		fmt.Println(headerStyle.Render("TASK HISTORY"))
		rows := [][]string{{"TIME", "TASK TYPE", "STATUS", "ELAPSED", "DETAIL"}}
		for _, ev := range events {
			elapsed := "-"
			if ev.ElapsedMs > 0 {
				elapsed = fmt.Sprintf("%dms", ev.ElapsedMs)
			}
			rows = append(rows, []string{
				ev.CreatedAt.Local().Format(time.TimeOnly),
				string(ev.TaskType),
				ev.Status,
				elapsed,
				ev.Detail,
			})
		}
		fmt.Print(renderTable(rows))
		return nil
	},
}

func styleStatus(status string) string {
	switch status {
	case memory.StatusActive:
		return okStyle.Render(status)
	case memory.StatusArchived:
		return faintStyle.Render(status)
	default:
		return status
	}
}

func init() {
	sessionListCmd.Flags().StringVar(&sessionUser, "user", "", "only sessions for this user")
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
}
