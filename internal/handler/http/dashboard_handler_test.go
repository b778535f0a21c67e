package httphandler_test

import (
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instwave/digest-web/internal/forms"
	"github.com/instwave/digest-web/internal/infrastructure/backend"
)

func validPreferences() url.Values {
	return url.Values{
		"topics":              {"1", "2"},
		"language":            {"ko"},
		"notification_method": {"both"},
		"active":              {"on"},
	}
}

func TestHandler_Dashboard(t *testing.T) {
	t.Run("renders the stored preferences", func(t *testing.T) {
		f := newFixture(t)

		rec := f.get("/dashboard", withCookie(f.memberCookie(t)))

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Your Preferences")
		assert.Contains(t, body, "2025-06-10")
		assert.Contains(t, body, `name="topics" value="1" checked`)
		assert.Contains(t, body, `name="topics" value="2">`)
		assert.Contains(t, body, `value="email" checked`)
		assert.Contains(t, body, `href="/dashboard/kakao"`)
	})

	t.Run("anonymous visitor is sent to login", func(t *testing.T) {
		f := newFixture(t)

		rec := f.get("/dashboard")

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("htmx visitor gets HX-Redirect", func(t *testing.T) {
		f := newFixture(t)

		rec := f.get("/dashboard", asHTMX())

		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
	})

	t.Run("expired backend session is sent to login", func(t *testing.T) {
		f := newFixture(t)
		f.auth.record = nil

		rec := f.get("/dashboard", withCookie(f.memberCookie(t)))

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("kakao callback result becomes a toast", func(t *testing.T) {
		f := newFixture(t)

		rec := f.get("/dashboard?kakao_success=1", withCookie(f.memberCookie(t)))

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Kakao account connected successfully!")
		assert.Equal(t, "Success", f.lastToast(t, memberSessionID).Title)
	})

	t.Run("kakao callback error becomes an error toast", func(t *testing.T) {
		f := newFixture(t)

		rec := f.get("/dashboard?kakao_error=denied", withCookie(f.memberCookie(t)))

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.True(t, f.lastToast(t, memberSessionID).Destructive())
	})
}

func TestHandler_UpdatePreferences(t *testing.T) {
	t.Run("success stores the preferences", func(t *testing.T) {
		f := newFixture(t)

		rec := f.post("/dashboard/preferences", validPreferences(), withCookie(f.memberCookie(t)))

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
		assert.Equal(t, []backend.Preferences{{
			Topics:             []int{1, 2},
			Language:           "ko",
			NotificationMethod: "both",
			Active:             true,
		}}, f.backend.preferences())

		got := f.lastToast(t, memberSessionID)
		assert.Equal(t, "Success", got.Title)
		assert.Equal(t, "Preferences updated successfully!", got.Description)
		assert.Equal(t, testToastDuration, got.Duration)
		assert.Equal(t, "abc", f.savedSession(t, rec).Backend["sessionid"])
	})

	t.Run("htmx gets the toast region out of band", func(t *testing.T) {
		f := newFixture(t)

		rec := f.post("/dashboard/preferences", validPreferences(), withCookie(f.memberCookie(t)), asHTMX())

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `id="toast-region"`)
		assert.Contains(t, body, `hx-swap-oob="true"`)
		assert.Contains(t, body, "Preferences updated successfully!")
		assert.Contains(t, body, `data-toast-duration="4000"`)
		assert.NotContains(t, body, "<!DOCTYPE html>")
	})

	t.Run("no topics is rejected before the backend", func(t *testing.T) {
		f := newFixture(t)
		form := validPreferences()
		form.Del("topics")

		rec := f.post("/dashboard/preferences", form, withCookie(f.memberCookie(t)))

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Empty(t, f.backend.preferences())

		got := f.lastToast(t, memberSessionID)
		assert.True(t, got.Destructive())
		assert.Equal(t, "Please select at least 1 research topic", got.Description)
	})

	t.Run("non-numeric topic is rejected before the backend", func(t *testing.T) {
		f := newFixture(t)
		form := validPreferences()
		form.Add("topics", "ai")

		f.post("/dashboard/preferences", form, withCookie(f.memberCookie(t)))

		assert.Empty(t, f.backend.preferences())
		got := f.lastToast(t, memberSessionID)
		assert.True(t, got.Destructive())
		assert.Equal(t, forms.MsgInvalidTopicPrefix+"ai", got.Description)
	})

	t.Run("unknown notification method is rejected", func(t *testing.T) {
		f := newFixture(t)
		form := validPreferences()
		form.Set("notification_method", "sms")

		f.post("/dashboard/preferences", form, withCookie(f.memberCookie(t)))

		assert.Empty(t, f.backend.preferences())
		assert.Equal(t, "Please choose a notification method", f.lastToast(t, memberSessionID).Description)
	})

	t.Run("backend failure without a message uses the fallback", func(t *testing.T) {
		f := newFixture(t)
		f.backend.prefs = backend.ActionResult{}

		f.post("/dashboard/preferences", validPreferences(), withCookie(f.memberCookie(t)))

		got := f.lastToast(t, memberSessionID)
		assert.True(t, got.Destructive())
		assert.Equal(t, backend.MsgPreferencesFailed, got.Description)
	})
}

func TestHandler_SendDigest(t *testing.T) {
	t.Run("success toast", func(t *testing.T) {
		f := newFixture(t)

		rec := f.post("/dashboard/send-digest", nil, withCookie(f.memberCookie(t)))

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Equal(t, "Weekly digest sent successfully!", f.lastToast(t, memberSessionID).Description)
	})

	t.Run("failure toast", func(t *testing.T) {
		f := newFixture(t)
		f.backend.digest = backend.ActionResult{}

		f.post("/dashboard/send-digest", nil, withCookie(f.memberCookie(t)))

		assert.Equal(t, backend.MsgSendDigestFailed, f.lastToast(t, memberSessionID).Description)
	})

	t.Run("second submission while the first runs is rejected", func(t *testing.T) {
		f := newFixture(t)
		gate := make(chan struct{})
		entered := make(chan struct{}, 1)
		f.backend.digestGate = gate
		f.backend.digestEntered = entered
		cookie := f.memberCookie(t)

		first := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			first <- f.post("/dashboard/send-digest", nil, withCookie(cookie))
		}()

		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("first submission never reached the backend")
		}

		second := f.post("/dashboard/send-digest", nil, withCookie(cookie), asHTMX())
		require.Equal(t, stdhttp.StatusOK, second.Code)
		assert.Contains(t, second.Body.String(), "Please wait for the current request to finish.")

		close(gate)
		select {
		case rec := <-first:
			assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		case <-time.After(2 * time.Second):
			t.Fatal("first submission never finished")
		}

		f.backend.mu.Lock()
		calls := f.backend.digestCalls
		f.backend.mu.Unlock()
		assert.Equal(t, 1, calls)
		assert.Equal(t, "Weekly digest sent successfully!", f.lastToast(t, memberSessionID).Description)
	})
}

func TestHandler_ConnectKakao(t *testing.T) {
	t.Run("redirects to the consent page", func(t *testing.T) {
		f := newFixture(t)

		rec := f.get("/dashboard/kakao", withCookie(f.memberCookie(t)))

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Equal(t, "https://kauth.kakao.com/oauth/authorize?client_id=test", rec.Header().Get("Location"))
	})

	t.Run("missing url returns to the dashboard with a toast", func(t *testing.T) {
		f := newFixture(t)
		f.backend.kakao = backend.KakaoAuthResult{Envelope: backend.Envelope{Success: true}}

		rec := f.get("/dashboard/kakao", withCookie(f.memberCookie(t)))

		assert.Equal(t, stdhttp.StatusSeeOther, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
		assert.Equal(t, backend.MsgKakaoAuthFailed, f.lastToast(t, memberSessionID).Description)
	})
}
