package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page/pagetest"
)

func newRegistry(locale string) (*Registry, *pagetest.Host) {
	host := pagetest.NewHost("/dashboard", pagetest.Button(DefaultRefreshControlID, "Refresh"))
	msgs := NewMessages(locale)
	reg := NewRegistry(host, msgs, zap.NewNop())
	RegisterDefaults(reg, Deps{
		Navigator: host,
		Sidebar:   host,
		Notifier:  host,
		Auth:      host,
		Inspector: host,
		Messages:  msgs,
	})
	return reg, host
}

func TestInvoke_GoBackWithoutHistory(t *testing.T) {
	reg, host := newRegistry("en")

	var out Outcome
	require.NotPanics(t, func() {
		out = reg.Invoke(context.Background(), "go_back")
	})

	assert.False(t, out.Success)
	assert.Equal(t, "There is no previous page to go back to", out.Message)
	assert.Equal(t, models.NotifyError, host.LastNotification().Kind)
	assert.Equal(t, "/dashboard", host.Path())
}

func TestInvoke_NavigationAndHistory(t *testing.T) {
	reg, host := newRegistry("en")
	ctx := context.Background()

	out := reg.Invoke(ctx, "open_reports")
	require.True(t, out.Success)
	assert.Equal(t, "Opening reports", out.Message)
	assert.Equal(t, "/reports", host.Path())
	assert.Equal(t, models.NotifySuccess, host.LastNotification().Kind)

	// repeating is harmless
	assert.True(t, reg.Invoke(ctx, "open_reports").Success)

	assert.True(t, reg.Invoke(ctx, "go_back").Success)
	assert.Equal(t, "/reports", host.Path())
	assert.True(t, reg.Invoke(ctx, "go_back").Success)
	assert.Equal(t, "/dashboard", host.Path())

	assert.True(t, reg.Invoke(ctx, "go_forward").Success)
	assert.Equal(t, "/reports", host.Path())

	assert.True(t, reg.Invoke(ctx, "refresh_page").Success)
	assert.Equal(t, 1, host.Reloads)
}

func TestInvoke_FailuresNeverPropagate(t *testing.T) {
	reg, host := newRegistry("en")
	ctx := context.Background()

	reg.Register("boom", func(ctx context.Context) (string, error) {
		panic("widget exploded")
	})
	reg.Register("broken", func(ctx context.Context) (string, error) {
		return "", errors.New("router unavailable")
	})

	t.Run("panic", func(t *testing.T) {
		out := reg.Invoke(ctx, "boom")
		assert.False(t, out.Success)
		assert.Equal(t, "Command failed", out.Message)
		assert.Equal(t, "Command failed", host.LastNotification().Message)
	})

	t.Run("unexpected error", func(t *testing.T) {
		out := reg.Invoke(ctx, "broken")
		assert.False(t, out.Success)
		assert.Equal(t, "Command failed", out.Message)
	})

	t.Run("unknown", func(t *testing.T) {
		out := reg.Invoke(ctx, "fly_to_moon")
		assert.False(t, out.Success)
		assert.Equal(t, "Unknown command: fly_to_moon", out.Message)
	})
}

func TestInvoke_SignOutIsOneShot(t *testing.T) {
	reg, host := newRegistry("en")
	ctx := context.Background()

	assert.True(t, reg.Invoke(ctx, "sign_out").Success)
	assert.Equal(t, 1, host.SignOuts)

	out := reg.Invoke(ctx, "logout")
	assert.False(t, out.Success)
	assert.Equal(t, "You are already signed out", out.Message)
	assert.Equal(t, 1, host.SignOuts)
}

func TestInvoke_SignOutProviderError(t *testing.T) {
	reg, host := newRegistry("en")
	host.SignOutErr = errors.New("network down")

	out := reg.Invoke(context.Background(), "sign_out")
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "Sign out failed")

	host.SignOutErr = nil
	assert.True(t, reg.Invoke(context.Background(), "sign_out").Success)
}

func TestInvoke_RefreshDashboard(t *testing.T) {
	ctx := context.Background()

	t.Run("clicks the control", func(t *testing.T) {
		reg, host := newRegistry("en")
		out := reg.Invoke(ctx, "refresh_dashboard")
		assert.True(t, out.Success)
		assert.Equal(t, []string{DefaultRefreshControlID}, host.ClickedSnapshot())
	})

	t.Run("busy", func(t *testing.T) {
		reg, host := newRegistry("en")
		busy := pagetest.Button(DefaultRefreshControlID, "Refresh")
		busy.Busy = true
		host.SetElements(busy)

		out := reg.Invoke(ctx, "refresh_dashboard")
		assert.False(t, out.Success)
		assert.Equal(t, "The dashboard is already refreshing", out.Message)
		assert.Empty(t, host.ClickedSnapshot())
	})

	t.Run("missing", func(t *testing.T) {
		reg, host := newRegistry("en")
		host.SetElements()

		out := reg.Invoke(ctx, "refresh_dashboard")
		assert.False(t, out.Success)
		assert.Equal(t, "There is no refresh control on this page", out.Message)
	})
}

func TestInvoke_SidebarAndIntrospection(t *testing.T) {
	reg, host := newRegistry("en")
	ctx := context.Background()

	reg.Invoke(ctx, "open_sidebar")
	assert.True(t, host.IsOpen())
	reg.Invoke(ctx, "toggle_sidebar")
	assert.False(t, host.IsOpen())

	out := reg.Invoke(ctx, "where_am_i")
	assert.Equal(t, "You are on the dashboard (/dashboard)", out.Message)

	out = reg.Invoke(ctx, "help")
	assert.Contains(t, out.Message, "open_dashboard")
	assert.Contains(t, out.Message, "sign_out")
}

func TestRegisterDefaults_Idempotent(t *testing.T) {
	reg, host := newRegistry("en")
	before := reg.Names()

	RegisterDefaults(reg, Deps{Navigator: host, Sidebar: host, Notifier: host, Auth: host, Inspector: host})
	assert.Equal(t, before, reg.Names())
}

func TestMessages_Arabic(t *testing.T) {
	assert.Equal(t, "ar", NewMessages("ar-SA").Lang())
	assert.Equal(t, "en", NewMessages("fr").Lang())
	assert.Equal(t, "en", NewMessages("").Lang())

	reg, _ := newRegistry("ar")
	out := reg.Invoke(context.Background(), "open_settings")
	assert.Equal(t, "جارٍ فتح الإعدادات", out.Message)
}

func TestSurface_MountCallUnmount(t *testing.T) {
	reg, host := newRegistry("en")
	ctx := context.Background()
	surface := NewSurface(NewMessages("en"), zap.NewNop())

	surface.Mount(reg)
	surface.Mount(reg)
	names := surface.Names()
	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
	assert.True(t, seen["voiceCommands.open_reports"])
	assert.True(t, seen["navigationTools.openReports"])

	assert.True(t, surface.Call(ctx, "open_reports").Success)
	assert.True(t, surface.Call(ctx, "voiceCommands.open_analytics").Success)
	assert.Equal(t, "/analytics", host.Path())
	assert.True(t, surface.Call(ctx, "navigationTools.openSettings").Success)
	assert.Equal(t, "/settings", host.Path())

	surface.Unmount()
	assert.False(t, surface.Mounted())
	assert.False(t, surface.Call(ctx, "voiceCommands.open_reports").Success)
	assert.False(t, surface.Call(ctx, "open_reports").Success)

	out := surface.Call(ctx, "openDashboard")
	assert.True(t, out.Success)
	assert.Equal(t, "/dashboard", host.Path())
}

func TestLegacyAlias(t *testing.T) {
	tests := map[string]string{
		"open_dashboard":     "openDashboard",
		"where_am_i":         "whereAmI",
		"help":               "help",
		"open_content_ideas": "openContentIdeas",
	}
	for in, want := range tests {
		assert.Equal(t, want, LegacyAlias(in), in)
	}
}
