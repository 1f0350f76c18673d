package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/clinic"
	"github.com/hackgods/agendavet-scheduling/internal/schedule"
)

// --- transitions ---

var transitionsCmd = &cobra.Command{
	Use:   "transitions <status>",
	Short: "List the statuses an appointment can move to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := appointment.ParseStatus(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", status, status.Label())
		next := appointment.NextPossibleActions(status)
		if len(next) == 0 {
			fmt.Fprintln(out, "  terminal: no further actions")
			return nil
		}
		for _, s := range next {
			fmt.Fprintf(out, "  -> %-17s %s\n", s, appointment.ActionLabel(s))
		}
		return nil
	},
}

// --- suggest ---

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Rank the best start times for a service on a date",
	Long: `Rank the best start times for a service on a date.

Examples:
  agendavet suggest --service 7d1c... --date 2026-03-02
  agendavet suggest --service 7d1c... --date 2026-03-02 --turn afternoon --prefer-vet "Dra. Ana Souza"
  agendavet suggest --service 7d1c... --date 2026-03-02 --exclude 5f2e... --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceID, _ := cmd.Flags().GetString("service")
		date, _ := cmd.Flags().GetString("date")
		turn, _ := cmd.Flags().GetString("turn")
		preferVet, _ := cmd.Flags().GetString("prefer-vet")
		vet, _ := cmd.Flags().GetString("vet")
		exclude, _ := cmd.Flags().GetString("exclude")
		asJSON, _ := cmd.Flags().GetBool("json")

		req := appointment.SuggestRequest{
			ServiceID:        serviceID,
			Date:             date,
			ExcludeRequestID: exclude,
			Preferences:      schedule.Preferences{Turn: clinic.Turn(turn)},
		}
		if preferVet != "" {
			req.Preferences.Veterinarian = &preferVet
		}
		if vet != "" {
			req.Veterinarian = &vet
		}

		agent, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()

		res, err := agent.Suggestions.Suggest(cmd.Context(), req)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(res)
		}
		if len(res.Suggestions) == 0 {
			fmt.Println("no free slot on", date)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSCORE\tVET\tWHY")
		for _, s := range res.Suggestions {
			v := "-"
			if s.Veterinarian != nil {
				v = *s.Veterinarian
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Clock, s.Score, v, s.Justification)
		}
		return w.Flush()
	},
}

func init() {
	suggestCmd.Flags().String("service", "", "service id (required)")
	suggestCmd.Flags().String("date", "", "target date, YYYY-MM-DD (required)")
	suggestCmd.Flags().String("turn", "", "preferred turn: morning or afternoon")
	suggestCmd.Flags().String("prefer-vet", "", "preferred veterinarian")
	suggestCmd.Flags().String("vet", "", "veterinarian already assigned to the request")
	suggestCmd.Flags().String("exclude", "", "request id being rescheduled")
	suggestCmd.Flags().Bool("json", false, "print the raw result")
	_ = suggestCmd.MarkFlagRequired("service")
	_ = suggestCmd.MarkFlagRequired("date")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and retry the offline operation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued operations, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		agent, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()

		ops, err := agent.Engine.QueueOperations(cmd.Context(), user)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tUSER\tSTATUS\tATTEMPTS\tLAST ERROR")
		for _, op := range ops {
			lastErr := ""
			if op.LastError != nil {
				lastErr = *op.LastError
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", op.ID, op.Type, op.UserID, op.Status, op.Attempts, lastErr)
		}
		return w.Flush()
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Move a user's failed operations back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		agent, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()

		n, err := agent.Engine.RetryFailed(cmd.Context(), user)
		if err != nil {
			return err
		}
		fmt.Printf("%d operation(s) pending again\n", n)
		return nil
	},
}

func init() {
	queueListCmd.Flags().String("user", "", "only this user's operations")
	queueRetryCmd.Flags().String("user", "", "user id (required)")
	_ = queueRetryCmd.MarkFlagRequired("user")
	queueCmd.AddCommand(queueListCmd, queueRetryCmd)
}

// --- drain ---

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued operations against the remote store once",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		agent, err := openAgent(cmd.Context())
		if err != nil {
			return err
		}
		defer agent.Close()

		res, err := agent.Engine.Drain(cmd.Context(), user)
		if err != nil {
			return err
		}
		switch {
		case res.Offline:
			fmt.Println("remote store unreachable; nothing replayed")
		case res.Skipped:
			fmt.Println("another drain is running")
		default:
			fmt.Printf("pushed %d, failed %d\n", res.Pushed, res.Failed)
		}
		return nil
	},
}

func init() {
	drainCmd.Flags().String("user", "", "only this user's operations")
}
