package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/avatar-podcast/internal/api/dto"
)

// script is the YAML form of a dialogue accepted by create --script.
type script struct {
	HostAvatarID  string `yaml:"host_avatar_id"`
	GuestAvatarID string `yaml:"guest_avatar_id"`
	UserID        string `yaml:"user_id"`
	Options       struct {
		VoiceIDHost  string `yaml:"voice_id_host"`
		VoiceIDGuest string `yaml:"voice_id_guest"`
		AspectRatio  string `yaml:"aspect_ratio"`
		Resolution   string `yaml:"resolution"`
	} `yaml:"options"`
	Turns []struct {
		Speaker string `yaml:"speaker"`
		Text    string `yaml:"text"`
	} `yaml:"turns"`
}

func loadScript(path string) (*dto.CreateJobRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	req := &dto.CreateJobRequest{
		HostAvatarID:  s.HostAvatarID,
		GuestAvatarID: s.GuestAvatarID,
		UserID:        s.UserID,
		Options: dto.JobOptionsRequest{
			VoiceIDHost:  s.Options.VoiceIDHost,
			VoiceIDGuest: s.Options.VoiceIDGuest,
			AspectRatio:  s.Options.AspectRatio,
			Resolution:   s.Options.Resolution,
		},
	}
	for _, t := range s.Turns {
		req.Turns = append(req.Turns, dto.TurnRequest{Speaker: t.Speaker, Text: t.Text})
	}
	return req, nil
}

// parseTurn reads a "speaker:text" flag value.
func parseTurn(raw string) (dto.TurnRequest, error) {
	speaker, text, ok := strings.Cut(raw, ":")
	if !ok || strings.TrimSpace(text) == "" {
		return dto.TurnRequest{}, fmt.Errorf("turn %q must look like host:text or guest:text", raw)
	}
	return dto.TurnRequest{Speaker: strings.ToLower(strings.TrimSpace(speaker)), Text: strings.TrimSpace(text)}, nil
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var scriptPath, host, guest, user, voiceHost, voiceGuest, aspect, resolution string
	var turns []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job from a YAML script or --turn flags",
		Example: `  avatarctl create --host av_1 --guest av_2 --turn "host:Welcome" --turn "guest:Thanks"
  avatarctl create --script episode.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &dto.CreateJobRequest{}
			if scriptPath != "" {
				loaded, err := loadScript(scriptPath)
				if err != nil {
					return err
				}
				req = loaded
			}

			flags := cmd.Flags()
			if flags.Changed("host") {
				req.HostAvatarID = host
			}
			if flags.Changed("guest") {
				req.GuestAvatarID = guest
			}
			if flags.Changed("user") {
				req.UserID = user
			}
			if flags.Changed("voice-host") {
				req.Options.VoiceIDHost = voiceHost
			}
			if flags.Changed("voice-guest") {
				req.Options.VoiceIDGuest = voiceGuest
			}
			if flags.Changed("aspect-ratio") {
				req.Options.AspectRatio = aspect
			}
			if flags.Changed("resolution") {
				req.Options.Resolution = resolution
			}
			for _, raw := range turns {
				turn, err := parseTurn(raw)
				if err != nil {
					return err
				}
				req.Turns = append(req.Turns, turn)
			}
			if len(req.Turns) == 0 {
				return fmt.Errorf("no turns given; use --script or --turn")
			}

			job, err := ctx.client().CreateJob(cmd.Context(), *req)
			if err != nil {
				return err
			}
			if ctx.asJSON {
				return writeJSON(cmd, job)
			}
			renderJob(cmd, job)
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "YAML dialogue script")
	cmd.Flags().StringVar(&host, "host", "", "Host avatar id")
	cmd.Flags().StringVar(&guest, "guest", "", "Guest avatar id")
	cmd.Flags().StringVar(&user, "user", "", "Owner recorded on the job")
	cmd.Flags().StringVar(&voiceHost, "voice-host", "", "Voice override for the host")
	cmd.Flags().StringVar(&voiceGuest, "voice-guest", "", "Voice override for the guest")
	cmd.Flags().StringVar(&aspect, "aspect-ratio", "", "Aspect ratio, e.g. 16:9")
	cmd.Flags().StringVar(&resolution, "resolution", "", "Output resolution, e.g. 1080p")
	cmd.Flags().StringArrayVar(&turns, "turn", nil, "Turn as speaker:text, repeatable")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var req dto.ListJobsRequest

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := ctx.client().ListJobs(cmd.Context(), req)
			if err != nil {
				return err
			}
			if ctx.asJSON {
				return writeJSON(cmd, page)
			}
			renderJobList(cmd, page)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.UserID, "user", "", "Only jobs created by this user")
	cmd.Flags().StringVar(&req.Status, "status", "", "Only jobs in this status")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 20, "Jobs per page")
	cmd.Flags().StringVar(&req.Cursor, "cursor", "", "Cursor from a previous page")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Refresh a job and show its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.asJSON {
				return writeJSON(cmd, job)
			}
			renderJob(cmd, job)
			return nil
		},
	}
}

func newSetVideoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-video <job-id> <turn-index> <video-url>",
		Short: "Mark a turn ready with a known video",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("turn index %q is not a number", args[1])
			}
			resp, err := ctx.client().UpdateTurnVideo(cmd.Context(), args[0], index, args[2])
			if err != nil {
				return err
			}
			if ctx.asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Turn %d is %s; job %s is %s\n", resp.Turn.Index, resp.Turn.Status, resp.JobID, resp.JobStatus)
			return nil
		},
	}
}

func newStitchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stitch <job-id> [video-url...]",
		Short: "Queue stitching of the ready clips, or of the given videos in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().RequestStitch(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			if ctx.asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stitch %s %s: %d clips -> %s\n", resp.StitchID, resp.Status, resp.VideoCount, resp.OutputPath)
			return nil
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the avatar provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := ctx.client().AvatarHealth(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.asJSON {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Provider %s  connected=%s  key=%s\n", report.BaseURL, yesNo(report.OK), report.APIKeyPrefix)
			if report.Error != "" {
				fmt.Fprintf(out, "  %s\n", report.Error)
			}
			if len(report.Avatars) > 0 {
				tw := newTable("Avatar", "Name", "Type")
				for _, a := range report.Avatars {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Type})
				}
				fmt.Fprintln(out, tw.Render())
			}
			if !report.OK {
				return fmt.Errorf("avatar provider unavailable")
			}
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
