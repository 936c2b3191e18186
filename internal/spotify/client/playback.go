package client

import (
	"context"
	"net/http"
	"strconv"
)

const playerPath = "/me/player"

// CurrentlyPlaying returns what the user is playing. It returns nil, nil
// when Spotify answers 204, meaning nothing is playing.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*CurrentlyPlaying, error) {
	var cp CurrentlyPlaying
	status, err := c.request(ctx, http.MethodGet, playerPath+"/currently-playing", nil, &cp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &cp, nil
}

// Play resumes playback. Spotify rejects a resume without a JSON body, so
// an empty object is sent.
func (c *Client) Play(ctx context.Context, deviceID string) error {
	return c.Put(ctx, playerURL("play", deviceID, nil), struct{}{}, nil)
}

func (c *Client) Pause(ctx context.Context, deviceID string) error {
	return c.Put(ctx, playerURL("pause", deviceID, nil), nil, nil)
}

func (c *Client) Next(ctx context.Context, deviceID string) error {
	return c.Post(ctx, playerURL("next", deviceID, nil), nil, nil)
}

func (c *Client) Previous(ctx context.Context, deviceID string) error {
	return c.Post(ctx, playerURL("previous", deviceID, nil), nil, nil)
}

// Seek moves playback to positionMs.
func (c *Client) Seek(ctx context.Context, positionMs int, deviceID string) error {
	params := map[string]string{"position_ms": strconv.Itoa(positionMs)}
	return c.Put(ctx, playerURL("seek", deviceID, params), nil, nil)
}

// playerURL builds a player endpoint path. An empty deviceID targets the
// active device.
func playerURL(action, deviceID string, params map[string]string) string {
	if deviceID != "" {
		if params == nil {
			params = map[string]string{}
		}
		params["device_id"] = deviceID
	}
	return BuildURL(playerPath+"/"+action, params)
}
