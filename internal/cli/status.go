package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tessro/verse/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current playback status",
	Long:  `Shows the merged playback state of the running instance.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := timeoutContext(cmd.Context())
	defer cancel()

	st, err := instance().State(ctx)
	if err != nil {
		return notRunning(err)
	}

	if JSONOutput() {
		return printJSON(cmd.OutOrStdout(), st)
	}
	writeStatus(cmd.OutOrStdout(), st)
	return nil
}

func writeStatus(out io.Writer, st *server.StateResponse) {
	fmt.Fprintf(out, "[%s] %s\n", st.Source, connectionLabel(st.IsConnected))

	if st.Track == nil {
		fmt.Fprintln(out, "  No track playing")
		return
	}

	playIcon := "▶"
	if !st.IsPlaying {
		playIcon = "⏸"
	}

	t := st.Track
	fmt.Fprintf(out, "  %s %s\n", playIcon, t.Title)
	fmt.Fprintf(out, "    %s - %s\n", t.Artist, t.Album)
	fmt.Fprintf(out, "    %s %s / %s\n",
		FormatProgress(st.Progress, 30),
		FormatDuration(st.PositionMs),
		FormatDuration(t.DurationMs))

	switch {
	case st.ArtworkLoading:
		fmt.Fprintln(out, "    artwork loading")
	case st.HasArtwork:
		fmt.Fprintln(out, "    artwork available")
	}
}

func connectionLabel(connected bool) string {
	if connected {
		return StatusIcon(true) + " connected"
	}
	return StatusIcon(false) + " disconnected"
}
