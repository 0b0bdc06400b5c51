// Package igtest provides a fake Instagram web front end for tests.
package igtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	// CSRFToken is the token embedded in the home page
	CSRFToken = "csrf-test-token"

	// SessionID is the sessionid cookie handed out on successful authentication
	SessionID = "test-session-id"

	// UserID is the id of the account that logs in
	UserID = "4242"

	// ChallengePath is the checkpoint URL returned on a checkpoint login
	ChallengePath = "/challenge/action/4242/AbCdEf/"

	// ReplayPath asks for a new code
	ReplayPath = "/challenge/replay/4242/AbCdEf/"

	// RolloutHash is embedded in the challenge page
	RolloutHash = "rollout-1"

	// MaskedEmail is the contact point shown on the challenge page
	MaskedEmail = "a*****e@e*****e.com"
)

// LoginMode selects how the fake answers a credential submission with the right password
type LoginMode int

const (
	LoginAuthenticate LoginMode = iota
	LoginCheckpoint
	LoginRateLimited
	LoginServerError
)

// Server simulates the Instagram endpoints used by igfeed
type Server struct {
	server *httptest.Server

	mu             sync.RWMutex
	username       string
	password       string
	mode           LoginMode
	code           string
	choice         string
	noBootstrap    bool
	errorResponses map[string]int
	profiles       map[string]profileFixture
	userInfo       map[string]string
	reels          map[string][]string
	live           map[string]string
	locations      map[string][]string
	headers        map[string]http.Header

	requestCount  int32
	codeRequests  int32
	codeSubmitted int32
}

type profileFixture struct {
	user     string
	fallback bool
}

// NewServer starts a fake accepting username/password. It is closed when the test ends.
func NewServer(t testing.TB, username, password string) *Server {
	s := &Server{
		username:       username,
		password:       password,
		code:           "123456",
		choice:         "1",
		errorResponses: make(map[string]int),
		profiles:       make(map[string]profileFixture),
		userInfo:       make(map[string]string),
		reels:          make(map[string][]string),
		live:           make(map[string]string),
		locations:      make(map[string][]string),
		headers:        make(map[string]http.Header),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("POST /accounts/login/ajax/{$}", s.handleLogin)
	mux.HandleFunc("/challenge/{kind}/{id}/{token}/{$}", s.handleChallenge)
	mux.HandleFunc("GET /{username}/{$}", s.handleProfile)
	mux.HandleFunc("GET /{username}/live/{$}", s.handleLive)
	mux.HandleFunc("GET /api/v1/users/{id}/info/{$}", s.handleUserInfo)
	mux.HandleFunc("POST /api/v1/clips/user/{$}", s.handleReels)
	mux.HandleFunc("GET /explore/locations/{id}/{$}", s.handleLocation)

	s.server = httptest.NewServer(s.track(mux))
	t.Cleanup(s.server.Close)
	return s
}

// URL returns the base URL of the fake, usable as both web and API base
func (s *Server) URL() string {
	return s.server.URL
}

// Client returns an HTTP client for the fake
func (s *Server) Client() *http.Client {
	return s.server.Client()
}

// SetLoginMode selects the answer to correct credentials
func (s *Server) SetLoginMode(mode LoginMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// SetVerificationCode sets the code the challenge accepts
func (s *Server) SetVerificationCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
}

// SetChallengeChoice sets the delivery choice on the challenge page: "0" for SMS, "1" for email
func (s *Server) SetChallengeChoice(choice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.choice = choice
}

// BreakBootstrap makes the home page omit its embedded configuration
func (s *Server) BreakBootstrap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noBootstrap = true
}

// SetErrorResponse makes every request to path answer with code
func (s *Server) SetErrorResponse(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorResponses[path] = code
}

// AddProfile serves user (a JSON object) on the profile page of username. With fallback the shared
// data has an empty ProfilePage and the user is only in the additional data call.
func (s *Server) AddProfile(username, user string, fallback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[username] = profileFixture{user: user, fallback: fallback}
}

// AddUserInfo serves user (a JSON object) for the numeric id
func (s *Server) AddUserInfo(id, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInfo[id] = user
}

// AddReels serves pages of items (each a JSON array) for the numeric user id. Page n+1 is reached
// with max_id "reels-cursor-n".
func (s *Server) AddReels(id string, pages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reels[id] = pages
}

// AddLive serves body as the live status of username
func (s *Server) AddLive(username, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[username] = body
}

// AddLocation serves pages of media edges (each a JSON array) for the location id. Page n+1 is
// reached with max_id "loc-cursor-n".
func (s *Server) AddLocation(id string, pages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[id] = pages
}

// RequestCount returns the number of requests served
func (s *Server) RequestCount() int {
	return int(atomic.LoadInt32(&s.requestCount))
}

// CodeRequests returns how many times a code delivery was requested
func (s *Server) CodeRequests() int {
	return int(atomic.LoadInt32(&s.codeRequests))
}

// CodeSubmissions returns how many codes were submitted
func (s *Server) CodeSubmissions() int {
	return int(atomic.LoadInt32(&s.codeSubmitted))
}

// LastHeader returns the headers of the last request to path
func (s *Server) LastHeader(path string) http.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers[path]
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.requestCount, 1)

		s.mu.Lock()
		s.headers[r.URL.Path] = r.Header.Clone()
		code := s.errorResponses[r.URL.Path]
		s.mu.Unlock()

		if code > 0 {
			writeJSON(w, code, map[string]interface{}{
				"message": http.StatusText(code),
				"status":  "fail",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	broken := s.noBootstrap
	s.mu.RUnlock()

	http.SetCookie(w, &http.Cookie{Name: "mid", Value: "mid-value", Path: "/"})
	if broken {
		writeHTML(w, "<html><body>maintenance</body></html>")
		return
	}
	writeHTML(w, page(sharedData(`{"config":{"csrf_token":"`+CSRFToken+`","viewer":null},"entry_data":{}}`)))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie("csrftoken")
	if err != nil || cookie.Value != CSRFToken || r.Header.Get("X-CSRFToken") != CSRFToken {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "CSRF token missing or incorrect", "status": "fail"})
		return
	}

	s.mu.RLock()
	mode, username, password := s.mode, s.username, s.password
	s.mu.RUnlock()

	enc := r.PostForm.Get("enc_password")
	prefix := "#PWD_INSTAGRAM_BROWSER:0:"
	submitted := ""
	if strings.HasPrefix(enc, prefix) {
		if i := strings.Index(enc[len(prefix):], ":"); i >= 0 {
			submitted = enc[len(prefix)+i+1:]
		}
	}

	if r.PostForm.Get("username") != username || submitted != password {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false, "user": true, "status": "ok"})
		return
	}

	switch mode {
	case LoginCheckpoint:
		http.SetCookie(w, &http.Cookie{Name: "rur", Value: "challenge", Path: "/"})
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":        "checkpoint_required",
			"checkpoint_url": ChallengePath,
			"lock":           false,
			"status":         "fail",
		})
	case LoginRateLimited:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":    "Please wait a few minutes before you try again.",
			"error_type": "generic_request_error",
			"status":     "fail",
		})
	case LoginServerError:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"message": "oops", "status": "fail"})
	default:
		s.grantSession(w)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"authenticated": true,
			"user":          true,
			"userId":        UserID,
			"status":        "ok",
		})
	}
}

func (s *Server) grantSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: SessionID, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "ds_user_id", Value: UserID, Path: "/"})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("rur"); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "no pending challenge", "status": "fail"})
		return
	}

	if r.PathValue("kind") == "replay" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		atomic.AddInt32(&s.codeRequests, 1)
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
		return
	}

	s.mu.RLock()
	choice, expected := s.choice, s.code
	s.mu.RUnlock()

	switch r.Method {
	case http.MethodGet:
		contact := `"email":"` + MaskedEmail + `"`
		if choice == "0" {
			contact = `"phone_number":"+1 ***-***-**42"`
		}
		challenge := fmt.Sprintf(`{"config":{"csrf_token":"%s"},"rollout_hash":"%s","entry_data":{"Challenge":[`+
			`{"challengeType":"SelectVerificationMethodForm","fields":{"choice":"%s",%s},`+
			`"navigation":{"forward":"%s","replay":"%s","dismiss":"https://www.instagram.com/"}}]}}`,
			CSRFToken, RolloutHash, choice, contact, ChallengePath, ReplayPath)
		writeHTML(w, page(sharedData(challenge)))

	case http.MethodPost:
		if err := r.ParseForm(); err != nil || r.Header.Get("X-CSRFToken") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if code := r.PostForm.Get("security_code"); code != "" {
			atomic.AddInt32(&s.codeSubmitted, 1)
			if code != expected {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"message": "Please check the security code sent you and try again.",
					"status":  "fail",
				})
				return
			}
			s.grantSession(w)
			writeJSON(w, http.StatusOK, map[string]interface{}{"location": "/", "type": "CHALLENGE_REDIRECTION", "status": "ok"})
			return
		}
		if r.PostForm.Get("choice") != "" {
			atomic.AddInt32(&s.codeRequests, 1)
			writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
			return
		}
		w.WriteHeader(http.StatusBadRequest)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	fixture, ok := s.profiles[r.PathValue("username")]
	s.mu.RUnlock()

	if !ok {
		writeHTML404(w)
		return
	}

	if fixture.fallback {
		writeHTML(w, page(
			sharedData(`{"config":{"csrf_token":"`+CSRFToken+`"},"entry_data":{"ProfilePage":[]}}`),
			`window.__additionalDataLoaded('/`+r.PathValue("username")+`/',{"graphql":{"user":`+fixture.user+`}});`,
		))
		return
	}
	writeHTML(w, page(sharedData(`{"config":{"csrf_token":"` + CSRFToken + `"},"entry_data":{"ProfilePage":[{"graphql":{"user":` + fixture.user + `}}]}}`)))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "login_required", "status": "fail"})
		return
	}

	s.mu.RLock()
	body, ok := s.live[r.PathValue("username")]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "not live", "status": "fail"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) || r.Header.Get("X-IG-App-ID") == "" {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "login_required", "status": "fail"})
		return
	}

	s.mu.RLock()
	user, ok := s.userInfo[r.PathValue("id")]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "User not found", "status": "fail"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"user":` + user + `,"status":"ok"}`))
}

func (s *Server) handleReels(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) || r.Header.Get("X-CSRFToken") == "" {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "login_required", "status": "fail"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("page_size") == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	pages, ok := s.reels[r.PostForm.Get("target_user_id")]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "User not found", "status": "fail"})
		return
	}

	idx, valid := pageIndex(r.PostForm.Get("max_id"), "reels-cursor-", len(pages))
	if !valid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "invalid max_id", "status": "fail"})
		return
	}

	paging := `{"max_id":null,"more_available":false}`
	if idx+1 < len(pages) {
		paging = fmt.Sprintf(`{"max_id":"reels-cursor-%d","more_available":true}`, idx+1)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"items":` + pages[idx] + `,"paging_info":` + paging + `,"status":"ok"}`))
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.RLock()
	pages, ok := s.locations[id]
	s.mu.RUnlock()

	xhr := r.URL.Query().Get("__a") == "1"
	if !ok {
		if xhr {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "not found", "status": "fail"})
			return
		}
		writeHTML404(w)
		return
	}

	idx, valid := pageIndex(r.URL.Query().Get("max_id"), "loc-cursor-", len(pages))
	if !valid {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"message": "bad cursor", "status": "fail"})
		return
	}

	pageInfo := `{"has_next_page":false,"end_cursor":null}`
	if idx+1 < len(pages) {
		pageInfo = fmt.Sprintf(`{"has_next_page":true,"end_cursor":"loc-cursor-%d"}`, idx+1)
	}
	location := fmt.Sprintf(`{"id":"%s","name":"Location %s","slug":"location-%s","lat":48.8583,"lng":2.2945,`+
		`"edge_location_to_media":{"count":%d,"page_info":%s,"edges":%s},"edge_location_to_top_posts":{"count":0,"edges":[]}}`,
		id, id, id, len(pages)*10, pageInfo, pages[idx])

	if xhr {
		if !authenticated(r) {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "login_required", "status": "fail"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"graphql":{"location":` + location + `}}`))
		return
	}
	writeHTML(w, page(sharedData(`{"config":{"csrf_token":"`+CSRFToken+`"},"entry_data":{"LocationsPage":[{"graphql":{"location":`+location+`}}]}}`)))
}

func pageIndex(cursor, prefix string, n int) (int, bool) {
	if cursor == "" {
		return 0, n > 0
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(cursor, prefix))
	if err != nil || !strings.HasPrefix(cursor, prefix) || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func authenticated(r *http.Request) bool {
	c, err := r.Cookie("sessionid")
	return err == nil && c.Value == SessionID
}

func sharedData(payload string) string {
	return "window._sharedData = " + payload + ";"
}

func page(scripts ...string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Instagram</title></head><body>")
	for _, s := range scripts {
		b.WriteString(`<script type="text/javascript">`)
		b.WriteString(s)
		b.WriteString("</script>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func writeHTML404(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("<html><body>Sorry, this page isn't available.</body></html>"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
