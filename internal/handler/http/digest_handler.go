package httphandler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/instwave/digest-web/internal/catalog"
)

// DigestView is the data of the paper list.
type DigestView struct {
	Topics   []string
	Selected string
	Papers   []catalog.Paper
}

// Digest lists the week's papers, optionally filtered by ?topic=.
func (h *Handler) Digest(c echo.Context) error {
	topic := strings.TrimSpace(c.QueryParam("topic"))
	if topic == "" {
		topic = catalog.AllTopics
	}

	view := DigestView{
		Topics:   h.catalog.PaperTopics(),
		Selected: topic,
		Papers:   h.catalog.Papers(topic),
	}
	if c.Request().Header.Get("HX-Target") == "paper-list" {
		return c.Render(http.StatusOK, "paper_list", h.pageData(c, "digest_title", view))
	}
	return h.render(c, "pages/digest.html", "digest_title", view)
}
