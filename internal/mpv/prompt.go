package mpv

import (
	"context"

	"github.com/charmbracelet/huh"
)

// ConfirmPrompt asks on the terminal whether verse may read and control mpv.
func ConfirmPrompt(ctx context.Context) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Allow verse to control mpv?").
				Description("verse reads what mpv is playing and sends playback commands.").
				Affirmative("Allow").
				Negative("Deny").
				Value(&ok),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}
