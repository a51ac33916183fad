package main

import (
	"fmt"
	"io"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/roster"

	"github.com/spf13/cobra"
)

func newRespondersCmd() *cobra.Command {
	var (
		rosterPath string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "responders",
		Short: "List responders in a roster file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResponders(cmd.OutOrStdout(), rosterPath, role)
		},
	}

	cmd.Flags().StringVarP(&rosterPath, "roster", "r", "responders.yaml", "path to responder roster")
	cmd.Flags().StringVar(&role, "role", "", "only list this role")
	return cmd
}

func runResponders(out io.Writer, rosterPath, role string) error {
	if role != "" && !entity.ResponderRole(role).Valid() {
		return fmt.Errorf("responders: unknown role %q", role)
	}

	responders, err := roster.Load(rosterPath)
	if err != nil {
		return err
	}

	listed := 0
	for _, r := range responders {
		if role != "" && string(r.Role) != role {
			continue
		}
		location := "-"
		if r.Location != nil {
			location = fmt.Sprintf("%.4f,%.4f", r.Location.Lat, r.Location.Lng)
		}
		fmt.Fprintf(out, "%-14s %-8s %-10s %-20s %s\n", r.Id, r.Role, r.Status, location, r.Name)
		listed++
	}
	fmt.Fprintf(out, "%d responders\n", listed)
	return nil
}
