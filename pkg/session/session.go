package session

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

// CSRFCookie is the cookie carrying the anti-forgery token
const CSRFCookie = "csrftoken"

// Cookie is one record of a session
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (c *Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func (c *Cookie) matches(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host != c.Domain && !strings.HasSuffix(host, "."+c.Domain) {
		return false
	}
	if c.Secure && u.Scheme != "https" {
		return false
	}
	return pathMatch(u.EscapedPath(), c.Path)
}

// Session is an ordered cookie store shared by reference between the login flow and every
// feed call. It implements http.CookieJar. Records keep their insertion order; updating a
// cookie keeps its position.
type Session struct {
	mu      sync.RWMutex
	cookies []*Cookie
	now     func() time.Time
}

// New returns an empty session
func New() *Session {
	return &Session{now: time.Now}
}

// SetCookies stores the cookies received in a response from u
func (s *Session) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, hc := range cookies {
		c := &Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   strings.TrimPrefix(strings.ToLower(hc.Domain), "."),
			Path:     hc.Path,
			Secure:   hc.Secure,
			HttpOnly: hc.HttpOnly,
		}
		if c.Domain == "" {
			c.Domain = strings.ToLower(u.Hostname())
		}
		if c.Path == "" || c.Path[0] != '/' {
			c.Path = defaultPath(u.EscapedPath())
		}

		switch {
		case hc.MaxAge < 0:
			s.remove(c.Name, c.Domain, c.Path)
			continue
		case hc.MaxAge > 0:
			c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
		case !hc.Expires.IsZero():
			c.Expires = hc.Expires
		}

		if c.expired(now) {
			s.remove(c.Name, c.Domain, c.Path)
			continue
		}
		s.upsert(c)
	}
}

// Cookies returns the unexpired cookies to send with a request to u
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock()
	var out []*http.Cookie
	for _, c := range s.cookies {
		if c.expired(now) || !c.matches(u) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Set inserts or replaces a cookie record
func (s *Session) Set(c Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Domain = strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	if c.Path == "" {
		c.Path = "/"
	}
	s.upsert(&c)
}

// Get returns the value of the first unexpired cookie with the given name
func (s *Session) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock()
	c, ok := lo.Find(s.cookies, func(c *Cookie) bool {
		return c.Name == name && !c.expired(now)
	})
	if !ok {
		return "", false
	}
	return c.Value, true
}

// CSRFToken returns the csrftoken cookie value or ""
func (s *Session) CSRFToken() string {
	v, _ := s.Get(CSRFCookie)
	return v
}

// All returns a copy of the unexpired records in order
func (s *Session) All() []Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock()
	return lo.FilterMap(s.cookies, func(c *Cookie, _ int) (Cookie, bool) {
		return *c, !c.expired(now)
	})
}

// Len returns the number of unexpired cookies
func (s *Session) Len() int {
	return len(s.All())
}

// Empty reports whether the session holds no usable cookie. A nil session is empty.
func (s *Session) Empty() bool {
	return s == nil || s.Len() == 0
}

// Clear discards every cookie
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = nil
}

func (s *Session) upsert(c *Cookie) {
	for i, existing := range s.cookies {
		if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
			s.cookies[i] = c
			return
		}
	}
	s.cookies = append(s.cookies, c)
}

func (s *Session) remove(name, domain, path string) {
	s.cookies = lo.Reject(s.cookies, func(c *Cookie, _ int) bool {
		return c.Name == name && c.Domain == domain && c.Path == path
	})
}

// defaultPath follows RFC 6265 section 5.1.4
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
