// Package dynecttest provides a canned in-process metering API for tests.
package dynecttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Config controls the canned behavior of a Server.
type Config struct {
	Token          string // session token issued at login; default "test-token"
	CSV            string // report payload served on success
	Redirects      int    // redirect responses served before the final one
	RedirectStatus int    // status used for redirects; default 302
	OmitLocation   bool   // serve redirects without a Location header
	LoginStatus    int    // default 200 with a token body
	ReportStatus   int    // final report status; default 200
	LogoutStatus   int    // default 200
}

// Server is an httptest-backed fake of the metering API. It records the
// requests it serves so tests can assert on the wire protocol.
type Server struct {
	*httptest.Server

	cfg Config

	mu            sync.Mutex
	redirectsLeft int
	loginCalls    int
	reportPosts   int
	redirectGETs  int
	logoutCalls   int
	lastLoginBody []byte
	lastPostBody  []byte
	reportHeaders []http.Header
	logoutToken   string
}

// New starts a plain-HTTP fake API.
func New(cfg Config) *Server {
	s := newServer(cfg)
	s.Server = httptest.NewServer(s.handler())
	return s
}

// NewTLS starts the fake API behind a self-signed TLS certificate.
func NewTLS(cfg Config) *Server {
	s := newServer(cfg)
	s.Server = httptest.NewTLSServer(s.handler())
	return s
}

func newServer(cfg Config) *Server {
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	if cfg.RedirectStatus == 0 {
		cfg.RedirectStatus = http.StatusFound
	}
	if cfg.LoginStatus == 0 {
		cfg.LoginStatus = http.StatusOK
	}
	if cfg.ReportStatus == 0 {
		cfg.ReportStatus = http.StatusOK
	}
	if cfg.LogoutStatus == 0 {
		cfg.LogoutStatus = http.StatusOK
	}
	return &Server{cfg: cfg, redirectsLeft: cfg.Redirects}
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/Session/", s.handleSession)
	mux.HandleFunc("/QPSReport/", s.handleReport)
	return mux
}

// BaseURL returns the server URL in the shape clients expect, with a
// trailing slash.
func (s *Server) BaseURL() string {
	return s.URL + "/"
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.loginCalls++
		s.lastLoginBody = body
		s.mu.Unlock()

		if s.cfg.LoginStatus != http.StatusOK {
			w.WriteHeader(s.cfg.LoginStatus)
			_, _ = io.WriteString(w, `{"status":"failure","msgs":[{"ERR_CD":"INVALID_DATA"}]}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]string{"token": s.cfg.Token},
		})

	case http.MethodDelete:
		s.mu.Lock()
		s.logoutCalls++
		s.logoutToken = r.Header.Get("Auth-Token")
		s.mu.Unlock()
		w.WriteHeader(s.cfg.LogoutStatus)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.reportHeaders = append(s.reportHeaders, r.Header.Clone())
	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		s.reportPosts++
		s.lastPostBody = body
	case http.MethodGet:
		s.redirectGETs++
	default:
		s.mu.Unlock()
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if r.Header.Get("Auth-Token") != s.cfg.Token {
		s.mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if s.redirectsLeft > 0 {
		s.redirectsLeft--
		s.mu.Unlock()
		if !s.cfg.OmitLocation {
			w.Header().Set("Location", "/QPSReport/")
		}
		w.WriteHeader(s.cfg.RedirectStatus)
		return
	}
	s.mu.Unlock()

	if s.cfg.ReportStatus != http.StatusOK {
		w.WriteHeader(s.cfg.ReportStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   map[string]string{"csv": s.cfg.CSV},
	})
}

// LoginCalls returns the number of login POSTs served.
func (s *Server) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// ReportPosts returns the number of report POSTs served.
func (s *Server) ReportPosts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportPosts
}

// RedirectGETs returns the number of redirected GETs served.
func (s *Server) RedirectGETs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectGETs
}

// LogoutCalls returns the number of logout DELETEs served.
func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// LastLoginBody returns the body of the most recent login POST.
func (s *Server) LastLoginBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoginBody
}

// LastReportBody returns the body of the most recent report POST.
func (s *Server) LastReportBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPostBody
}

// ReportHeaders returns the headers of every report request served, in
// order (the initial POST followed by redirected GETs).
func (s *Server) ReportHeaders() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]http.Header, len(s.reportHeaders))
	copy(out, s.reportHeaders)
	return out
}

// LogoutToken returns the Auth-Token header of the most recent logout.
func (s *Server) LogoutToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutToken
}
