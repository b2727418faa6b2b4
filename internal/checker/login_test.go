package checker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-monitor/internal/models"
)

const loginPage = `<!doctype html>
<html><head><title>Sign in</title></head>
<body>
  <form method="post" action="/session">
    <input type="hidden" name="csrf_token" value="tok-123">
    <input type="hidden" name="flow" value="">
    <input type="email" name="login_email">
    <input type="password" name="login_secret">
    <button type="submit">Sign in</button>
  </form>
</body></html>`

type capturedPost struct {
	form    url.Values
	cookie  string
	referer string
	ctype   string
}

func newLoginServer(t *testing.T, page string, postStatus int, postBody string) (*httptest.Server, *capturedPost, *atomic.Int32) {
	t.Helper()
	captured := &capturedPost{}
	posts := &atomic.Int32{}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "a=1; Path=/")
		w.Header().Add("Set-Cookie", "b=2; HttpOnly")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		assert.NoError(t, r.ParseForm())
		captured.form = r.PostForm
		captured.cookie = r.Header.Get("Cookie")
		captured.referer = r.Referer()
		captured.ctype = r.Header.Get("Content-Type")
		if postStatus == http.StatusFound {
			w.Header().Set("Location", "/dashboard")
		}
		w.WriteHeader(postStatus)
		_, _ = w.Write([]byte(postBody))
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		t.Error("redirect after POST must not be followed")
	})

	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s, captured, posts
}

func TestAttempt_RedirectMeansSuccess(t *testing.T) {
	s, got, posts := newLoginServer(t, loginPage, http.StatusFound, "")

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/login", "ops@example.com", "s3cret")

	assert.Equal(t, models.StatusUp, res.Status, res.Error)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.EqualValues(t, 1, posts.Load())
	assert.Equal(t, "tok-123", got.form.Get("csrf_token"))
	assert.True(t, got.form.Has("flow"))
	assert.Equal(t, "ops@example.com", got.form.Get("login_email"))
	assert.Equal(t, "s3cret", got.form.Get("login_secret"))
	assert.Equal(t, "a=1; b=2", got.cookie)
	assert.Equal(t, s.URL+"/login", got.referer)
	assert.Equal(t, "application/x-www-form-urlencoded", got.ctype)
}

func TestAttempt_GetFailureSkipsPost(t *testing.T) {
	var posts atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		http.NotFound(w, r)
	}))
	defer s.Close()

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/login", "u", "p")

	assert.Equal(t, models.StatusDown, res.Status)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, res.Error, "404")
	assert.Zero(t, posts.Load())
}

func TestAttempt_TransportFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	res := NewLoginAutomator(time.Second, "").Attempt(context.Background(), "http://"+addr+"/login", "u", "p")

	assert.Equal(t, models.StatusDown, res.Status)
	assert.Contains(t, res.Error, "login page request failed")
	assert.False(t, res.CheckedAt.IsZero())
}

func TestAttempt_PasswordFieldStillPresentMeansRejected(t *testing.T) {
	s, _, _ := newLoginServer(t, loginPage, http.StatusOK, loginPage)

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/login", "u", "wrong")

	assert.Equal(t, models.StatusDown, res.Status)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Error, "credentials")
}

func TestAttempt_OKWithoutPasswordFieldMeansSuccess(t *testing.T) {
	s, _, _ := newLoginServer(t, loginPage, http.StatusOK, "<html><body>Welcome back</body></html>")

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/login", "u", "p")

	assert.Equal(t, models.StatusUp, res.Status)
	assert.Empty(t, res.Error)
}

func TestAttempt_UnexpectedStatus(t *testing.T) {
	s, _, _ := newLoginServer(t, loginPage, http.StatusInternalServerError, "")

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/login", "u", "p")

	assert.Equal(t, models.StatusDown, res.Status)
	assert.Equal(t, "unexpected status 500 after login submit", res.Error)
}

func TestAttempt_BaseHrefOverridesPagePath(t *testing.T) {
	var hit atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/app/page", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><BASE HREF="/app2/"></head><body>
			<form action="login"><input name="user"><input type="password" name="pass"></form></body></html>`))
	})
	mux.HandleFunc("/app2/login", func(w http.ResponseWriter, r *http.Request) {
		hit.Store(r.URL.Path)
		w.Header().Set("Location", "/app2/home")
		w.WriteHeader(http.StatusSeeOther)
	})
	mux.HandleFunc("/app/login", func(w http.ResponseWriter, r *http.Request) {
		hit.Store(r.URL.Path)
		http.NotFound(w, r)
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/app/page", "u", "p")

	assert.Equal(t, models.StatusUp, res.Status, res.Error)
	assert.Equal(t, "/app2/login", hit.Load())
}

func TestBuildSubmission_EffectiveBase(t *testing.T) {
	pageURL, _ := url.Parse("https://host/app/page")
	body := []byte(`<base href="/app2/"><form action="login"><input type="password" name="pw"></form>`)

	target, _ := buildSubmission(pageURL, body, "u", "p")

	assert.Equal(t, "https://host/app2/login", target)
}

func TestBuildSubmission_NoActionUsesBase(t *testing.T) {
	pageURL, _ := url.Parse("https://host/app/page?x=1")

	target, _ := buildSubmission(pageURL, []byte(`<form><input type="password" name="pw"></form>`), "u", "p")
	assert.Equal(t, "https://host/app/page?x=1", target)

	target, _ = buildSubmission(pageURL, []byte(`<base href="https://other/root/"><form><input type="password"></form>`), "u", "p")
	assert.Equal(t, "https://other/root/", target)
}

func TestBuildSubmission_FallbackFieldNames(t *testing.T) {
	pageURL, _ := url.Parse("https://host/login")

	_, form := buildSubmission(pageURL, []byte(`<html><body><p>No form here</p></body></html>`), "alice", "pw")

	assert.Equal(t, "alice", form.Get(FallbackUsernameField))
	assert.Equal(t, "pw", form.Get(FallbackPasswordField))
}

func TestBuildSubmission_PicksFormWithPassword(t *testing.T) {
	pageURL, _ := url.Parse("https://host/")
	body := []byte(`
		<form action="/search"><input type="text" name="q"></form>
		<form action="/auth"><input type="hidden" name="state" value="abc"><input type="text" name="uid"><input type="password" name="pwd"></form>`)

	target, form := buildSubmission(pageURL, body, "bob", "pw")

	assert.Equal(t, "https://host/auth", target)
	assert.Equal(t, "abc", form.Get("state"))
	assert.Equal(t, "bob", form.Get("uid"))
	assert.Equal(t, "pw", form.Get("pwd"))
	assert.False(t, form.Has("q"))
}

func TestBuildSubmission_ApexRequestDiscriminator(t *testing.T) {
	pageURL, _ := url.Parse("https://apex.example.com/ords/f?p=100:LOGIN")
	body := []byte(`<form action="wwv_flow.accept" method="post">
		<input type="hidden" name="p_flow_id" value="100">
		<input type="hidden" name="p_flow_step_id" value="9999">
		<input type="hidden" name="p_request" value="">
		<input type="text" name="P9999_USERNAME">
		<input type="password" name="P9999_PASSWORD">
	</form>`)

	_, form := buildSubmission(pageURL, body, "u", "p")

	assert.Equal(t, "LOGIN", form.Get("p_request"))
	assert.Equal(t, "100", form.Get("p_flow_id"))
	assert.Equal(t, "u", form.Get("P9999_USERNAME"))
}

func TestBuildSubmission_ApexKeepsExistingRequest(t *testing.T) {
	pageURL, _ := url.Parse("https://apex.example.com/ords/f")
	body := []byte(`<script>apex.submit</script><form>
		<input type="hidden" name="p_request" value="SIGN_IN">
		<input type="password" name="pw"></form>`)

	_, form := buildSubmission(pageURL, body, "u", "p")
	assert.Equal(t, "SIGN_IN", form.Get("p_request"))
}

func TestBuildSubmission_NoQuirkWithoutMarkers(t *testing.T) {
	pageURL, _ := url.Parse("https://host/")
	body := []byte(`<form><input type="hidden" name="p_request" value=""><input type="password" name="pw"></form>`)

	_, form := buildSubmission(pageURL, body, "u", "p")
	assert.Equal(t, "", form.Get("p_request"))
}

func TestAttempt_CollectsCookiesAcrossRedirects(t *testing.T) {
	var cookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "route=blue; Path=/")
		http.Redirect(w, r, "/signin", http.StatusFound)
	})
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			cookie = r.Header.Get("Cookie")
			w.Header().Set("Location", "/")
			w.WriteHeader(http.StatusFound)
			return
		}
		w.Header().Add("Set-Cookie", "sid=42; HttpOnly")
		_, _ = w.Write([]byte(`<form method="post"><input name="u"><input type="password" name="p"></form>`))
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/", "u", "p")

	assert.Equal(t, models.StatusUp, res.Status, res.Error)
	assert.Equal(t, "route=blue; sid=42", cookie)
	assert.Equal(t, s.URL+"/signin", res.FinalURL)
}

func TestAttempt_SessionCookieSentOnRedirects(t *testing.T) {
	var cookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "sid=42; Path=/")
		http.Redirect(w, r, "/signin", http.StatusFound)
	})
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if r.Method == http.MethodPost {
			cookie = r.Header.Get("Cookie")
			w.Header().Set("Location", "/home")
			w.WriteHeader(http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(`<form method="post"><input name="u"><input type="password" name="p"></form>`))
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	res := NewLoginAutomator(2*time.Second, "").Attempt(context.Background(), s.URL+"/", "u", "p")

	assert.Equal(t, models.StatusUp, res.Status, res.Error)
	assert.Equal(t, s.URL+"/signin", res.FinalURL)
	assert.Equal(t, "sid=42", cookie)
}
