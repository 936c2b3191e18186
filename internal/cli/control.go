package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/verse/internal/core"
)

const requestTimeout = 10 * time.Second

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Resume playback",
	Long:  `Resume playback on the selected source.`,
	Args:  cobra.NoArgs,
	RunE:  commandRunner("play", "Playing"),
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Long:  `Pause playback on the selected source.`,
	Args:  cobra.NoArgs,
	RunE:  commandRunner("pause", "Paused"),
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle play/pause",
	Args:  cobra.NoArgs,
	RunE:  commandRunner("toggle", "Toggled playback"),
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to next track",
	Args:  cobra.NoArgs,
	RunE:  commandRunner("next", "Skipped to next track"),
}

var prevCmd = &cobra.Command{
	Use:     "prev",
	Aliases: []string{"previous"},
	Short:   "Go to previous track",
	Args:    cobra.NoArgs,
	RunE:    commandRunner("previous", "Went to previous track"),
}

var seekCmd = &cobra.Command{
	Use:   "seek <position>",
	Short: "Seek within the current track",
	Long: `Seek within the current track.

The position is a percentage or a time.

Examples:
  verse seek 50%     # Jump to the middle
  verse seek 1:30    # Jump to 1 minute 30 seconds`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

var sourceCmd = &cobra.Command{
	Use:       "source <local|spotify>",
	Short:     "Select the playback source",
	Long:      `Select which source drives the lyrics view and playback controls.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(core.SourceLocal), string(core.SourceSpotify)},
	RunE:      runSource,
}

var connectCmd = &cobra.Command{
	Use:       "connect <local|spotify>",
	Short:     "Connect a source",
	Long:      `Connect a source. Connecting Spotify starts sign-in when needed.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(core.SourceLocal), string(core.SourceSpotify)},
	RunE:      runConnect,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(connectCmd)
}

func commandRunner(name, done string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := timeoutContext(cmd.Context())
		defer cancel()

		if err := instance().Command(ctx, name); err != nil {
			return notRunning(err)
		}
		return report(cmd, map[string]string{"status": "ok", "command": name}, done)
	}
}

func runSeek(cmd *cobra.Command, args []string) error {
	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	c := instance()
	st, err := c.State(ctx)
	if err != nil {
		return notRunning(err)
	}
	if st.Track == nil {
		return fmt.Errorf("nothing is playing")
	}

	progress, err := parseSeek(args[0], time.Duration(st.Track.DurationMs)*time.Millisecond)
	if err != nil {
		return err
	}
	if err := c.Seek(ctx, progress); err != nil {
		return err
	}

	target := int64(progress * float64(st.Track.DurationMs))
	return report(cmd, map[string]any{"status": "ok", "progress": progress},
		"Seeked to "+FormatDuration(target))
}

// parseSeek converts "42%", "42" or "m:ss" to progress in 0..1.
func parseSeek(arg string, duration time.Duration) (float64, error) {
	arg = strings.TrimSpace(arg)

	if strings.Contains(arg, ":") {
		if duration <= 0 {
			return 0, fmt.Errorf("current track has no duration")
		}
		parts := strings.Split(arg, ":")
		if len(parts) != 2 {
			return 0, fmt.Errorf("invalid time %q, use m:ss", arg)
		}
		m, err := strconv.Atoi(parts[0])
		if err != nil || m < 0 {
			return 0, fmt.Errorf("invalid minutes in %q", arg)
		}
		s, err := strconv.Atoi(parts[1])
		if err != nil || s < 0 || s >= 60 {
			return 0, fmt.Errorf("invalid seconds in %q", arg)
		}
		at := time.Duration(m)*time.Minute + time.Duration(s)*time.Second
		return clamp(float64(at) / float64(duration)), nil
	}

	pct, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q, use a percentage or m:ss", arg)
	}
	if pct < 0 || pct > 100 {
		return 0, fmt.Errorf("percentage must be between 0 and 100")
	}
	return pct / 100, nil
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func runSource(cmd *cobra.Command, args []string) error {
	src, ok := core.ParseSource(args[0])
	if !ok {
		return fmt.Errorf("unknown source %q (valid: local, spotify)", args[0])
	}

	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	if err := instance().SwitchSource(ctx, string(src)); err != nil {
		return notRunning(err)
	}
	return report(cmd, map[string]string{"status": "ok", "source": string(src)}, "Source: "+string(src))
}

func runConnect(cmd *cobra.Command, args []string) error {
	src, ok := core.ParseSource(args[0])
	if !ok {
		return fmt.Errorf("unknown source %q (valid: local, spotify)", args[0])
	}

	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	if err := instance().Connect(ctx, string(src)); err != nil {
		return notRunning(err)
	}

	msg := "Connected " + string(src)
	if src == core.SourceSpotify {
		msg = spotifySignInHint
	}
	return report(cmd, map[string]string{"status": "ok", "source": string(src)}, msg)
}

// report prints a JSON result or a plain message.
func report(cmd *cobra.Command, result any, msg string) error {
	if JSONOutput() {
		return printJSON(cmd.OutOrStdout(), result)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}
