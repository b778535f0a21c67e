package httphandler

import (
	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/catalog"
	"github.com/instwave/digest-web/internal/middleware"
)

// adminDigestTimeLayout formats the time in the log entry of a manual digest.
const adminDigestTimeLayout = "3:04:05 PM"

// AdminView is the data of the admin panel.
type AdminView struct {
	Subscribers   []catalog.Subscriber
	Logs          []string
	Summaries     []catalog.ThesisSummary
	Notifications []catalog.Notification
	FailedCount   int
}

// Admin renders the admin panel.
func (h *Handler) Admin(c echo.Context) error {
	notifications := h.catalog.Notifications()
	failed := 0
	for _, n := range notifications {
		if n.Failed() {
			failed++
		}
	}

	return h.render(c, "pages/admin.html", "admin_title", AdminView{
		Subscribers:   h.catalog.Subscribers(),
		Logs:          h.activity.Entries(),
		Summaries:     h.catalog.ThesisSummaries(),
		Notifications: notifications,
		FailedCount:   failed,
	})
}

// AdminSendDigest records a manual digest run against the sample subscribers.
func (h *Handler) AdminSendDigest(c echo.Context) error {
	done, ok := h.begin(c, opAdminDigest)
	if !ok {
		return h.adminFinish(c)
	}
	defer done()

	entry := "Digest sent to mock users at " + h.now().Format(adminDigestTimeLayout)
	h.activity.Prepend(entry)
	h.notifySuccess(c, entry)
	return h.adminFinish(c)
}

// AdminRefreshSummaries reloads the thesis summaries.
func (h *Handler) AdminRefreshSummaries(c echo.Context) error {
	done, ok := h.begin(c, opAdminRefresh)
	if !ok {
		return h.adminFinish(c)
	}
	defer done()

	h.notifySuccess(c, h.t(c, "summaries_refreshed"))
	return h.adminFinish(c)
}

// AdminRefreshNotifications reloads the notification log.
func (h *Handler) AdminRefreshNotifications(c echo.Context) error {
	done, ok := h.begin(c, opAdminNotifRef)
	if !ok {
		return h.adminFinish(c)
	}
	defer done()

	h.notifySuccess(c, h.t(c, "notifications_refreshed"))
	return h.adminFinish(c)
}

// adminFinish reloads the panel so the log and tables reflect the action.
func (h *Handler) adminFinish(c echo.Context) error {
	return middleware.Redirect(c, PathAdmin)
}
