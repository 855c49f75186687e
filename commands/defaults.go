package commands

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
	"github.com/Perceptus-Labs/voicenav-go-sdk/page"
)

// DefaultRefreshControlID is the DOM id of the dashboard refresh button.
const DefaultRefreshControlID = "dashboard-refresh"

// DefaultRoutes is the dashboard route table used when none is configured.
var DefaultRoutes = []models.Route{
	{Name: "dashboard", Path: "/dashboard", LabelEN: "the dashboard", LabelAR: "لوحة التحكم", Keywords: []string{"home", "main"}},
	{Name: "content_ideas", Path: "/content-ideas", LabelEN: "content ideas", LabelAR: "أفكار المحتوى", Keywords: []string{"ideas"}},
	{Name: "reports", Path: "/reports", LabelEN: "reports", LabelAR: "التقارير"},
	{Name: "analytics", Path: "/analytics", LabelEN: "analytics", LabelAR: "التحليلات"},
	{Name: "settings", Path: "/settings", LabelEN: "settings", LabelAR: "الإعدادات"},
	{Name: "profile", Path: "/profile", LabelEN: "your profile", LabelAR: "الملف الشخصي"},
}

// Deps are the host capabilities the built-in commands act on. Nil
// capabilities leave the corresponding commands unregistered.
type Deps struct {
	Navigator page.Navigator
	Sidebar   page.Sidebar
	Notifier  page.Notifier
	Auth      page.AuthProvider
	Inspector page.Inspector

	Routes           []models.Route
	Messages         Messages
	RefreshControlID string
}

type builtins struct {
	reg  *Registry
	deps Deps

	mu        sync.Mutex
	signedOut bool
}

// RegisterDefaults installs the built-in commands. Calling it again replaces
// the previous set, so remounts never accumulate duplicates.
func RegisterDefaults(reg *Registry, deps Deps) {
	if deps.Routes == nil {
		deps.Routes = DefaultRoutes
	}
	if deps.RefreshControlID == "" {
		deps.RefreshControlID = DefaultRefreshControlID
	}
	b := &builtins{reg: reg, deps: deps}

	if deps.Navigator != nil {
		for _, route := range deps.Routes {
			reg.Register("open_"+route.Name, b.open(route))
		}
		reg.Register("go_back", b.goBack)
		reg.Register("go_forward", b.goForward)
		reg.Register("refresh_page", b.refreshPage)
		reg.Register("where_am_i", b.whereAmI)
	}
	if deps.Sidebar != nil {
		reg.Register("open_sidebar", b.sidebar(deps.Sidebar.Open, MsgSidebarOpen))
		reg.Register("close_sidebar", b.sidebar(deps.Sidebar.Close, MsgSidebarClose))
		reg.Register("toggle_sidebar", b.sidebar(deps.Sidebar.Toggle, MsgSidebarToggle))
	}
	if deps.Auth != nil {
		reg.Register("sign_out", b.signOut)
		reg.Register("logout", b.signOut)
	}
	if deps.Inspector != nil {
		reg.Register("refresh_dashboard", b.refreshDashboard)
	}
	reg.Register("help", b.help)
}

func (b *builtins) t(key string, args ...any) string {
	return b.deps.Messages.T(key, args...)
}

func (b *builtins) notify(msg string) string {
	if b.deps.Notifier != nil {
		b.deps.Notifier.Notify(models.Notification{Message: msg, Kind: models.NotifySuccess})
	}
	return msg
}

func (b *builtins) open(route models.Route) Command {
	return func(ctx context.Context) (string, error) {
		if err := b.deps.Navigator.Navigate(route.Path); err != nil {
			return "", err
		}
		return b.notify(b.t(MsgNavigated, b.deps.Messages.RouteLabel(route))), nil
	}
}

func (b *builtins) goBack(ctx context.Context) (string, error) {
	if b.deps.Navigator.HistoryLength() <= 1 {
		return "", Fail("%s", b.t(MsgBackFailed))
	}
	if err := b.deps.Navigator.Back(); err != nil {
		if errors.Is(err, page.ErrNoHistory) {
			return "", Fail("%s", b.t(MsgBackFailed))
		}
		return "", err
	}
	return b.notify(b.t(MsgBack)), nil
}

func (b *builtins) goForward(ctx context.Context) (string, error) {
	if err := b.deps.Navigator.Forward(); err != nil {
		if errors.Is(err, page.ErrNoHistory) {
			return "", Fail("%s", b.t(MsgForwardFailed))
		}
		return "", err
	}
	return b.notify(b.t(MsgForward)), nil
}

func (b *builtins) refreshPage(ctx context.Context) (string, error) {
	if err := b.deps.Navigator.Reload(); err != nil {
		return "", err
	}
	return b.notify(b.t(MsgRefreshPage)), nil
}

func (b *builtins) sidebar(action func(), key string) Command {
	return func(ctx context.Context) (string, error) {
		action()
		return b.notify(b.t(key)), nil
	}
}

// signOut succeeds at most once per registration.
func (b *builtins) signOut(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.signedOut {
		return "", Fail("%s", b.t(MsgAlreadySignedOut))
	}
	if err := b.deps.Auth.SignOut(ctx); err != nil {
		return "", Fail("%s: %v", b.t(MsgSignOutFailed), err)
	}
	b.signedOut = true
	return b.notify(b.t(MsgSignedOut)), nil
}

func (b *builtins) whereAmI(ctx context.Context) (string, error) {
	loc := b.deps.Navigator.Location()
	name := loc.Title
	for _, route := range b.deps.Routes {
		if route.Path == loc.Pathname {
			name = b.deps.Messages.RouteLabel(route)
			break
		}
	}
	if name == "" {
		name = loc.Pathname
	}
	return b.t(MsgWhereAmI, name, loc.Pathname), nil
}

func (b *builtins) help(ctx context.Context) (string, error) {
	return b.t(MsgHelp, strings.Join(b.reg.Names(), ", ")), nil
}

func (b *builtins) refreshDashboard(ctx context.Context) (string, error) {
	el, ok := b.deps.Inspector.ElementByID(b.deps.RefreshControlID)
	if !ok {
		return "", Fail("%s", b.t(MsgRefreshMissing))
	}
	if el.Busy || el.Disabled {
		return "", Fail("%s", b.t(MsgRefreshBusy))
	}
	if err := b.deps.Inspector.Click(ctx, el); err != nil {
		return "", err
	}
	return b.notify(b.t(MsgRefreshDashboard)), nil
}
