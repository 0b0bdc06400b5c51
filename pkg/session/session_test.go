package session

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func names(cookies []*http.Cookie) []string {
	out := make([]string, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, c.Name)
	}
	return out
}

func TestSetCookiesKeepsOrderAndUpdatesInPlace(t *testing.T) {
	s := New()
	u := mustURL(t, "https://www.instagram.com/accounts/login/ajax/")

	s.SetCookies(u, []*http.Cookie{
		{Name: "csrftoken", Value: "a", Domain: ".instagram.com", Path: "/"},
		{Name: "mid", Value: "m", Domain: ".instagram.com", Path: "/"},
	})
	s.SetCookies(u, []*http.Cookie{
		{Name: "sessionid", Value: "s", Domain: ".instagram.com", Path: "/"},
		{Name: "csrftoken", Value: "b", Domain: ".instagram.com", Path: "/"},
	})

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "csrftoken", all[0].Name)
	assert.Equal(t, "b", all[0].Value)
	assert.Equal(t, "mid", all[1].Name)
	assert.Equal(t, "sessionid", all[2].Name)
	assert.Equal(t, "b", s.CSRFToken())
}

func TestCookiesMatchDomainPathAndScheme(t *testing.T) {
	s := New()
	s.SetCookies(mustURL(t, "https://www.instagram.com/"), []*http.Cookie{
		{Name: "wide", Value: "1", Domain: "instagram.com", Path: "/"},
		{Name: "host", Value: "2"},
		{Name: "api", Value: "3", Domain: "instagram.com", Path: "/api"},
		{Name: "secure", Value: "4", Domain: "instagram.com", Path: "/", Secure: true},
	})

	assert.ElementsMatch(t, []string{"wide", "host", "secure"}, names(s.Cookies(mustURL(t, "https://www.instagram.com/explore/"))))
	assert.ElementsMatch(t, []string{"wide", "api", "secure"}, names(s.Cookies(mustURL(t, "https://i.instagram.com/api/v1/users/1/info/"))))
	assert.ElementsMatch(t, []string{"wide", "host"}, names(s.Cookies(mustURL(t, "http://www.instagram.com/"))))
	assert.Empty(t, s.Cookies(mustURL(t, "https://example.com/")))
	assert.ElementsMatch(t, []string{"wide", "secure"}, names(s.Cookies(mustURL(t, "https://i.instagram.com/apiary"))))
}

func TestExpiryAndDeletion(t *testing.T) {
	s := New()
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }
	u := mustURL(t, "https://www.instagram.com/")

	s.SetCookies(u, []*http.Cookie{
		{Name: "short", Value: "1", Path: "/", MaxAge: 10},
		{Name: "gone", Value: "2", Path: "/", Expires: clock.Add(-time.Minute)},
		{Name: "keep", Value: "3", Path: "/"},
	})
	assert.Equal(t, 2, s.Len())

	clock = clock.Add(11 * time.Second)
	_, ok := s.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	s.SetCookies(u, []*http.Cookie{{Name: "keep", Path: "/", MaxAge: -1}})
	assert.True(t, s.Empty())
}

func TestEmpty(t *testing.T) {
	var nilSession *Session
	assert.True(t, nilSession.Empty())
	assert.True(t, New().Empty())

	s := New()
	s.Set(Cookie{Name: "ig_cb", Value: "1", Domain: ".instagram.com"})
	assert.False(t, s.Empty())
	assert.Equal(t, "instagram.com", s.All()[0].Domain)
	assert.Equal(t, "/", s.All()[0].Path)

	s.Clear()
	assert.True(t, s.Empty())
}

func TestConcurrentReads(t *testing.T) {
	s := New()
	u := mustURL(t, "https://www.instagram.com/")
	s.SetCookies(u, []*http.Cookie{{Name: "csrftoken", Value: "t", Path: "/"}})

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				if s.CSRFToken() != "t" {
					t.Error("unexpected token")
				}
				_ = s.Cookies(u)
			}
			return nil
		})
	}
	g.Go(func() error {
		for j := 0; j < 100; j++ {
			s.SetCookies(u, []*http.Cookie{{Name: "mid", Value: "m", Path: "/"}})
		}
		return nil
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, 2, s.Len())
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "/", defaultPath(""))
	assert.Equal(t, "/", defaultPath("/"))
	assert.Equal(t, "/", defaultPath("/login"))
	assert.Equal(t, "/accounts/login", defaultPath("/accounts/login/"))
}
