package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesVisitorCookie(t *testing.T) {
	var gotVisitor, gotSession string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotVisitor = VisitorIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/widget/session", nil)
	req.Header.Set(SessionHeaderName, "tab-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if !isValidVisitorID(gotVisitor) {
		t.Fatalf("expected generated visitor id, got %q", gotVisitor)
	}
	if gotSession != "tab-42" {
		t.Fatalf("expected tab-42, got %q", gotSession)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != gotVisitor {
		t.Fatalf("expected visitor cookie to be set, got %v", cookies)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	const existing = "anon_0123456789abcdef0123456789abcdef"
	var gotVisitor string
	h := Middleware(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotVisitor = VisitorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/?session_id=tab-1", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: existing})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if gotVisitor != existing {
		t.Fatalf("expected %s, got %s", existing, gotVisitor)
	}
	cookie := w.Result().Cookies()[0]
	if !cookie.Secure || cookie.SameSite != http.SameSiteNoneMode {
		t.Fatalf("expected secure cross-site cookie in production, got %+v", cookie)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	cases := map[string]string{
		"":               DefaultSessionIDValue,
		"  tab-1  ":      "tab-1",
		"bad id":         DefaultSessionIDValue,
		"<script>":       DefaultSessionIDValue,
		"abc.def:ghi_jk": "abc.def:ghi_jk",
	}
	for in, want := range cases {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContextDefaults(t *testing.T) {
	ctx := context.Background()
	if VisitorIDFromContext(ctx) != "" {
		t.Fatal("expected empty visitor id")
	}
	if SessionIDFromContext(ctx) != DefaultSessionIDValue {
		t.Fatal("expected default session id")
	}
}
