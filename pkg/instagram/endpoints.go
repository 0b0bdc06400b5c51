package instagram

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	// DefaultWebBaseURL is the base URL for Instagram's web pages
	DefaultWebBaseURL = "https://www.instagram.com"

	// DefaultAPIBaseURL is the base URL for the private JSON API
	DefaultAPIBaseURL = "https://i.instagram.com"

	// LoginEndpoint receives the credential form
	LoginEndpoint = "/accounts/login/ajax/"

	// UserInfoEndpoint is the pattern for the JSON profile
	UserInfoEndpoint = "/api/v1/users/%d/info/"

	// ReelsEndpoint receives the reels paging form
	ReelsEndpoint = "/api/v1/clips/user/"

	// ReelsPageSize is the number of reels requested per page
	ReelsPageSize = 12
)

// Endpoints builds the URLs of every request the package makes. Web and API are base URLs without a
// trailing slash; tests point both at an httptest server.
type Endpoints struct {
	Web string
	API string
}

// DefaultEndpoints returns the production endpoints
func DefaultEndpoints() Endpoints {
	return Endpoints{Web: DefaultWebBaseURL, API: DefaultAPIBaseURL}
}

// NewEndpoints normalises the base URLs, using the production ones for empty values
func NewEndpoints(web, api string) Endpoints {
	if web == "" {
		web = DefaultWebBaseURL
	}
	if api == "" {
		api = DefaultAPIBaseURL
	}
	return Endpoints{Web: strings.TrimRight(web, "/"), API: strings.TrimRight(api, "/")}
}

// Base returns the web home page
func (e Endpoints) Base() string {
	return e.Web + "/"
}

// Login returns the credential submission URL
func (e Endpoints) Login() string {
	return e.Web + LoginEndpoint
}

// Profile returns the HTML profile page of a user
func (e Endpoints) Profile(username string) string {
	return fmt.Sprintf("%s/%s/", e.Web, url.PathEscape(username))
}

// UserInfo returns the JSON profile URL for a numeric user id
func (e Endpoints) UserInfo(userID int64) string {
	return e.API + fmt.Sprintf(UserInfoEndpoint, userID)
}

// Reels returns the reels paging URL
func (e Endpoints) Reels() string {
	return e.API + ReelsEndpoint
}

// Live returns the live broadcast status URL of a user
func (e Endpoints) Live(username string) string {
	return fmt.Sprintf("%s/%s/live/?__a=1", e.Web, url.PathEscape(username))
}

// Location returns the HTML page of a location
func (e Endpoints) Location(locationID string) string {
	return fmt.Sprintf("%s/explore/locations/%s/", e.Web, url.PathEscape(locationID))
}

// LocationMore returns the JSON continuation of a location's media after cursor
func (e Endpoints) LocationMore(locationID, cursor string) string {
	params := url.Values{}
	params.Set("__a", "1")
	params.Set("max_id", cursor)
	return fmt.Sprintf("%s?%s", e.Location(locationID), params.Encode())
}

// Resolve turns a path returned by the service, such as a checkpoint URL, into an absolute web URL.
// Absolute URLs are returned unchanged.
func (e Endpoints) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty URL")
	}
	base, err := url.Parse(e.Base())
	if err != nil {
		return "", fmt.Errorf("invalid web base URL: %w", err)
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	return u.String(), nil
}

// CookieDomain returns the domain the seeded login cookies are scoped to: the parent domain of the
// web host ("instagram.com" for "www.instagram.com"), or the host itself for IPs and single labels.
func (e Endpoints) CookieDomain() string {
	u, err := url.Parse(e.Web)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return host
	}
	if parts := strings.Split(host, "."); len(parts) > 2 {
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return host
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips the decorations users paste along with a username
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if i := strings.Index(username, "instagram.com/"); i >= 0 {
		username, _, _ = strings.Cut(username[i+len("instagram.com/"):], "?")
	}
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}

// CodeIdentity is the key under which a verification code for login is stored: the sanitized
// login, lowercased, with every character outside [a-z0-9._] replaced by an underscore.
func CodeIdentity(login string) string {
	name := strings.ToLower(SanitizeUsername(login))

	var b strings.Builder
	b.Grow(len(name))
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9') || char == '.' || char == '_' {
			b.WriteRune(char)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
