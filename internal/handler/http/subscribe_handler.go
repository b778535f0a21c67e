package httphandler

import (
	"log/slog"
	"net/url"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/catalog"
	"github.com/instwave/digest-web/internal/forms"
	"github.com/instwave/digest-web/internal/middleware"
)

// SubscribeView is the data of the public subscription page.
type SubscribeView struct {
	Topics   []catalog.Topic
	Name     string
	Email    string
	Selected []string
	Channels []string
	Error    string

	// Confirmed is set once the backend accepted the subscription.
	Confirmed bool
	Message   string
	UserID    int
}

// Checked reports whether topic id was selected.
func (v SubscribeView) Checked(id int) bool {
	return slices.Contains(v.Selected, strconv.Itoa(id))
}

// SubscribePage renders the subscription form.
func (h *Handler) SubscribePage(c echo.Context) error {
	view := SubscribeView{
		Topics:   h.catalog.SubscriptionTopics(),
		Channels: []string{forms.MethodEmail},
	}
	return h.render(c, "pages/subscribe.html", "subscribe_title", view)
}

// Subscribe validates the form and forwards it to the backend.
func (h *Handler) Subscribe(c echo.Context) error {
	values, err := c.FormParams()
	if err != nil {
		values = url.Values{}
	}
	form := forms.ParseSubscribe(values)
	view := SubscribeView{
		Topics:   h.catalog.SubscriptionTopics(),
		Name:     form.Name,
		Email:    form.Email,
		Selected: form.RawTopics,
		Channels: form.Channels,
	}

	sub, verr := form.Validate()
	if verr != nil {
		view.Error = forms.Message(verr)
		return h.render(c, "pages/subscribe.html", "subscribe_title", view)
	}

	done, ok := h.begin(c, opSubscribe)
	if !ok {
		return h.render(c, "pages/subscribe.html", "subscribe_title", view)
	}
	defer done()

	sess := middleware.GetSession(c)
	res := h.backend.Submit(c.Request().Context(), sess.Backend, sub)
	sess.Backend = res.Cookies
	h.saveSession(c)
	if !res.OK() {
		view.Error = res.Message
		return h.render(c, "pages/subscribe.html", "subscribe_title", view)
	}

	h.logger.InfoContext(c.Request().Context(), "subscription accepted",
		slog.Int("user_id", res.UserID),
		slog.String("session_id", sess.ID),
	)

	return h.render(c, "pages/subscribe.html", "subscribe_title", SubscribeView{
		Topics:    view.Topics,
		Channels:  []string{forms.MethodEmail},
		Confirmed: true,
		Message:   res.Message,
		UserID:    res.UserID,
	})
}
