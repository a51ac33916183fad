package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/internal/roster"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/matcher"

	"github.com/spf13/cobra"
)

type previewOptions struct {
	rosterPath   string
	lat          float64
	lng          float64
	incidentType string
	timeout      time.Duration
}

func newPreviewCmd() *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Rank responders for an incident location",
		Long:  "Loads a roster file and prints the responders the matcher would pick for an incident, nearest first. Nothing is reserved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.rosterPath, "roster", "r", "responders.yaml", "path to responder roster")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "incident latitude")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "incident longitude")
	cmd.Flags().StringVarP(&opts.incidentType, "type", "t", string(entity.IncidentOther), "incident type")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 250*time.Millisecond, "matching deadline")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func runPreview(ctx context.Context, out io.Writer, opts previewOptions) error {
	incidentType := entity.IncidentType(opts.incidentType)
	if !incidentType.Valid() {
		return fmt.Errorf("preview: unknown incident type %q", opts.incidentType)
	}

	responders, err := roster.Load(opts.rosterPath)
	if err != nil {
		return err
	}

	dir := directory.New(logger.NewNopLogger())
	dir.Load(responders)
	m := matcher.New(dir, matcher.Config{Timeout: opts.timeout}, logger.NewNopLogger())

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := m.Preview(ctx, entity.Location{Lat: opts.lat, Lng: opts.lng}, incidentType)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	fmt.Fprintf(out, "Roles: %v\n", m.RequiredRoles(incidentType))
	if len(result.Ranked) == 0 {
		fmt.Fprintln(out, "No available responders.")
	}
	for i, c := range result.Ranked {
		fmt.Fprintf(out, "%2d. %-14s %-8s %7.2f km  ETA %d min\n", i+1, c.Responder.Id, c.Responder.Role, c.DistanceKm, c.EtaMinutes)
	}
	for _, r := range result.Skipped {
		fmt.Fprintf(out, "    %-14s %-8s no location\n", r.Id, r.Role)
	}
	return nil
}
