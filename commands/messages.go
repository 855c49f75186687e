package commands

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

// Message keys.
const (
	MsgNavigated        = "navigated"
	MsgBack             = "back"
	MsgBackFailed       = "back_failed"
	MsgForward          = "forward"
	MsgForwardFailed    = "forward_failed"
	MsgRefreshPage      = "refresh_page"
	MsgSidebarOpen      = "sidebar_open"
	MsgSidebarClose     = "sidebar_close"
	MsgSidebarToggle    = "sidebar_toggle"
	MsgSignedOut        = "signed_out"
	MsgAlreadySignedOut = "already_signed_out"
	MsgSignOutFailed    = "sign_out_failed"
	MsgWhereAmI         = "where_am_i"
	MsgHelp             = "help"
	MsgRefreshDashboard = "refresh_dashboard"
	MsgRefreshMissing   = "refresh_missing"
	MsgRefreshBusy      = "refresh_busy"
	MsgCommandFailed    = "command_failed"
	MsgUnknownCommand   = "unknown_command"
	MsgConnectFailed    = "connect_failed"
	MsgConnectionLost   = "connection_lost"
)

var catalogs = map[string]map[string]string{
	"en": {
		MsgNavigated:        "Opening %s",
		MsgBack:             "Going back",
		MsgBackFailed:       "There is no previous page to go back to",
		MsgForward:          "Going forward",
		MsgForwardFailed:    "There is no next page to go forward to",
		MsgRefreshPage:      "Refreshing the page",
		MsgSidebarOpen:      "Sidebar opened",
		MsgSidebarClose:     "Sidebar closed",
		MsgSidebarToggle:    "Sidebar toggled",
		MsgSignedOut:        "Signed out",
		MsgAlreadySignedOut: "You are already signed out",
		MsgSignOutFailed:    "Sign out failed",
		MsgWhereAmI:         "You are on %s (%s)",
		MsgHelp:             "Available commands: %s",
		MsgRefreshDashboard: "Refreshing dashboard data",
		MsgRefreshMissing:   "There is no refresh control on this page",
		MsgRefreshBusy:      "The dashboard is already refreshing",
		MsgCommandFailed:    "Command failed",
		MsgUnknownCommand:   "Unknown command: %s",
		MsgConnectFailed:    "Could not connect to the voice assistant: %s",
		MsgConnectionLost:   "The voice assistant was disconnected",
	},
	"ar": {
		MsgNavigated:        "جارٍ فتح %s",
		MsgBack:             "العودة إلى الصفحة السابقة",
		MsgBackFailed:       "لا توجد صفحة سابقة للعودة إليها",
		MsgForward:          "الانتقال إلى الصفحة التالية",
		MsgForwardFailed:    "لا توجد صفحة تالية",
		MsgRefreshPage:      "جارٍ تحديث الصفحة",
		MsgSidebarOpen:      "تم فتح الشريط الجانبي",
		MsgSidebarClose:     "تم إغلاق الشريط الجانبي",
		MsgSidebarToggle:    "تم تبديل الشريط الجانبي",
		MsgSignedOut:        "تم تسجيل الخروج",
		MsgAlreadySignedOut: "لقد قمت بتسجيل الخروج بالفعل",
		MsgSignOutFailed:    "فشل تسجيل الخروج",
		MsgWhereAmI:         "أنت في %s (%s)",
		MsgHelp:             "الأوامر المتاحة: %s",
		MsgRefreshDashboard: "جارٍ تحديث بيانات لوحة التحكم",
		MsgRefreshMissing:   "لا يوجد زر تحديث في هذه الصفحة",
		MsgRefreshBusy:      "لوحة التحكم قيد التحديث بالفعل",
		MsgCommandFailed:    "فشل تنفيذ الأمر",
		MsgUnknownCommand:   "أمر غير معروف: %s",
		MsgConnectFailed:    "تعذر الاتصال بالمساعد الصوتي: %s",
		MsgConnectionLost:   "انقطع الاتصال بالمساعد الصوتي",
	},
}

var supported = []language.Tag{language.English, language.Arabic}

var matcher = language.NewMatcher(supported)

// Messages renders notification text in one locale.
type Messages struct {
	lang string
}

// NewMessages picks the closest supported locale, English by default.
func NewMessages(locale string) Messages {
	tag, err := language.Parse(locale)
	if err != nil {
		return Messages{lang: "en"}
	}
	_, index, _ := matcher.Match(tag)
	if supported[index] == language.Arabic {
		return Messages{lang: "ar"}
	}
	return Messages{lang: "en"}
}

// Lang returns "en" or "ar".
func (m Messages) Lang() string {
	if m.lang == "" {
		return "en"
	}
	return m.lang
}

func (m Messages) T(key string, args ...any) string {
	format, ok := catalogs[m.Lang()][key]
	if !ok {
		format = catalogs["en"][key]
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// RouteLabel returns the localized display name of a route.
func (m Messages) RouteLabel(r models.Route) string {
	if m.Lang() == "ar" && r.LabelAR != "" {
		return r.LabelAR
	}
	if r.LabelEN != "" {
		return r.LabelEN
	}
	return r.Name
}
