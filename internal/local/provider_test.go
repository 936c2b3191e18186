package local

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tessro/verse/internal/core"
)

type fakeBackend struct {
	mu       sync.Mutex
	auth     Authorization
	grant    Authorization
	prompts  int
	item     *Item
	status   Status
	position time.Duration
	events   chan Event
	begins   int
	commands []string
	cmdErr   error

	positionReads atomic.Int32
}

func newFakeBackend(auth Authorization) *fakeBackend {
	return &fakeBackend{auth: auth, grant: Authorized}
}

func (b *fakeBackend) Authorization() Authorization {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth
}

func (b *fakeBackend) RequestAuthorization(ctx context.Context) (Authorization, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts++
	b.auth = b.grant
	return b.auth, nil
}

func (b *fakeBackend) BeginNotifications(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.begins++
	b.events = make(chan Event, 16)
	return b.events, nil
}

func (b *fakeBackend) EndNotifications() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events != nil {
		close(b.events)
		b.events = nil
	}
}

func (b *fakeBackend) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events <- ev
}

func (b *fakeBackend) NowPlaying() *Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.item
}

func (b *fakeBackend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *fakeBackend) Position() time.Duration {
	b.positionReads.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) record(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, name)
	return b.cmdErr
}

func (b *fakeBackend) Play(ctx context.Context) error { return b.record("play") }
func (b *fakeBackend) Pause(ctx context.Context) error { return b.record("pause") }
func (b *fakeBackend) Seek(ctx context.Context, to time.Duration) error {
	return b.record("seek " + to.String())
}
func (b *fakeBackend) SkipNext(ctx context.Context) error { return b.record("next") }
func (b *fakeBackend) SkipPrevious(ctx context.Context) error { return b.record("previous") }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var song = &Item{ID: "t1", Title: "One", Artist: "A", Album: "Al", Duration: 200 * time.Second, ISRC: "X", Kind: KindSong}

func TestConnectAuthorization(t *testing.T) {
	tests := []struct {
		name        string
		auth        Authorization
		grant       Authorization
		wantErr     error
		wantPrompts int
	}{
		{"authorized", Authorized, Authorized, nil, 0},
		{"not determined then granted", NotDetermined, Authorized, nil, 1},
		{"not determined then denied", NotDetermined, Denied, core.ErrAuthorization, 1},
		{"denied never prompts", Denied, Authorized, core.ErrAuthorization, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(tt.auth)
			b.grant = tt.grant
			p := New(b)
			t.Cleanup(p.Disconnect)

			err := p.Connect(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
			}
			if b.prompts != tt.wantPrompts {
				t.Errorf("prompts = %d, want %d", b.prompts, tt.wantPrompts)
			}
			if got := p.IsConnected().Get(); got != (tt.wantErr == nil) {
				t.Errorf("IsConnected() = %v", got)
			}
		})
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	b := newFakeBackend(Authorized)
	p := New(b)
	t.Cleanup(p.Disconnect)

	for i := 0; i < 3; i++ {
		if err := p.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}
	if b.begins != 1 {
		t.Errorf("BeginNotifications calls = %d, want 1", b.begins)
	}
}

func TestConnectSeedsState(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.item = song
	b.status = StatusPaused
	b.position = 42 * time.Second
	p := New(b)
	t.Cleanup(p.Disconnect)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	track := p.CurrentTrack().Get()
	if track == nil || track.ID != "t1" || track.Source != core.SourceLocal || track.ISRC != "X" {
		t.Errorf("track = %+v", track)
	}
	if p.IsPlaying().Get() {
		t.Error("IsPlaying() = true for paused backend")
	}
	if got := p.Position().Get(); got != 42*time.Second {
		t.Errorf("Position() = %v, want 42s", got)
	}
}

func TestVideoItemIsNoTrack(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.item = &Item{ID: "v1", Title: "Clip", Kind: KindVideo}
	p := New(b)
	t.Cleanup(p.Disconnect)

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if p.CurrentTrack().Get() != nil {
		t.Error("video item should produce no track")
	}
}

func TestStatusEventResamplesImmediately(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.item = song
	// A sampler slow enough that only the event path can update position.
	p := New(b, WithSampleRate(1))
	p.interval = time.Hour
	t.Cleanup(p.Disconnect)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.set(func(b *fakeBackend) {
		b.status = StatusPlaying
		b.position = 7 * time.Second
	})
	b.emit(EventStatusChanged)

	waitFor(t, "resample", func() bool { return p.Position().Get() == 7*time.Second })
	if !p.IsPlaying().Get() {
		t.Error("IsPlaying() = false after status event")
	}

	b.set(func(b *fakeBackend) {
		b.status = StatusPaused
		b.position = 8 * time.Second
	})
	b.emit(EventStatusChanged)

	waitFor(t, "paused", func() bool { return !p.IsPlaying().Get() })
	waitFor(t, "resample", func() bool { return p.Position().Get() == 8*time.Second })
}

func TestItemEventReplacesTrack(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.item = song
	p := New(b)
	t.Cleanup(p.Disconnect)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.set(func(b *fakeBackend) {
		b.item = &Item{ID: "t2", Title: "Two", Kind: KindSong}
	})
	b.emit(EventItemChanged)

	waitFor(t, "new track", func() bool {
		tr := p.CurrentTrack().Get()
		return tr != nil && tr.ID == "t2"
	})
}

func TestSamplerRunsOnlyWhilePlaying(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.item = song
	b.status = StatusPlaying
	p := New(b, WithSampleRate(500))
	t.Cleanup(p.Disconnect)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.set(func(b *fakeBackend) { b.position = 3 * time.Second })
	waitFor(t, "sampled position", func() bool { return p.Position().Get() == 3*time.Second })

	p.playing.Set(false)
	// Let any tick that started before the pause finish.
	time.Sleep(10 * time.Millisecond)
	reads := b.positionReads.Load()
	b.set(func(b *fakeBackend) { b.position = 9 * time.Second })
	time.Sleep(30 * time.Millisecond)

	if got := p.Position().Get(); got != 3*time.Second {
		t.Errorf("Position() = %v while paused, want 3s", got)
	}
	if n := b.positionReads.Load(); n != reads {
		t.Errorf("backend position read %d times while paused", n-reads)
	}
}

func TestSamplerNotDuplicated(t *testing.T) {
	b := newFakeBackend(Authorized)
	p := New(b)
	t.Cleanup(p.Disconnect)

	p.startSampling()
	first := p.sampleDone
	p.startSampling()

	if p.sampleDone != first {
		t.Error("startSampling() started a second sampler")
	}
}

func TestDisconnectResetsAndAllowsReconnect(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.item = song
	b.status = StatusPlaying
	p := New(b)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.Disconnect()

	if p.CurrentTrack().Get() != nil || p.IsPlaying().Get() || p.IsConnected().Get() {
		t.Error("Disconnect() should reset state")
	}
	if p.sampling {
		t.Error("sampler should be stopped")
	}

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if !p.IsConnected().Get() || !p.sampling {
		t.Error("reconnect should restart observation")
	}
	p.Disconnect()
}

func TestCommandsAbsorbErrors(t *testing.T) {
	b := newFakeBackend(Authorized)
	b.cmdErr = errors.New("backend busy")
	p := New(b)

	ctx := context.Background()
	p.Play(ctx)
	p.Pause(ctx)
	p.Seek(ctx, 100*time.Second)
	p.SkipNext(ctx)
	p.SkipPrevious(ctx)

	want := []string{"play", "pause", "seek 1m40s", "next", "previous"}
	if len(b.commands) != len(want) {
		t.Fatalf("commands = %v, want %v", b.commands, want)
	}
	for i := range want {
		if b.commands[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, b.commands[i], want[i])
		}
	}
}

func TestTogglePlayback(t *testing.T) {
	b := newFakeBackend(Authorized)
	p := New(b)

	p.playing.Set(true)
	core.TogglePlayback(context.Background(), p)
	p.playing.Set(false)
	core.TogglePlayback(context.Background(), p)

	if len(b.commands) != 2 || b.commands[0] != "pause" || b.commands[1] != "play" {
		t.Errorf("commands = %v, want [pause play]", b.commands)
	}
}
