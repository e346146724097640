// Package dummy is a local stand-in for the upload backend: session login,
// proxy upload, delegated URL issuing and a blob endpoint that accepts
// signed PUTs.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"valetbench/internal/resources"
)

const sessionCookie = "JSESSIONID"

type ServerConfig struct {
	Port int

	// Users maps username to password. Defaults to demo/1.
	Users map[string]string

	// StoreDir receives uploaded bytes. Empty discards them.
	StoreDir string

	// Latency adds a random delay in [0, Latency) to upload endpoints.
	Latency time.Duration

	// FailureRate is the share of uploads answered with a 500.
	FailureRate float64

	// SASExpiry is the lifetime of issued upload URLs.
	SASExpiry time.Duration

	// Secret signs upload URLs. A random one is generated when empty.
	Secret []byte

	Logger *log.Logger
}

type user struct {
	ID       int
	Name     string
	Password string
}

// Counters are totals since the server started.
type Counters struct {
	Logins       int64
	ProxyUploads int64
	BlobPuts     int64
	SASIssued    int64
	Rejected     int64
	Bytes        int64
}

type Server struct {
	cfg   ServerConfig
	users map[string]user
	log   *log.Logger
	proc  *resources.Process

	mu       sync.RWMutex
	sessions map[string]user

	logins, proxyUploads, blobPuts, sasIssued, rejected, bytes atomic.Int64
}

type blobClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

func New(cfg ServerConfig) *Server {
	if len(cfg.Users) == 0 {
		cfg.Users = map[string]string{"demo": "1"}
	}
	if cfg.SASExpiry <= 0 {
		cfg.SASExpiry = 3 * time.Minute
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte(uuid.NewString())
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	s := &Server{
		cfg:      cfg,
		users:    make(map[string]user, len(cfg.Users)),
		log:      cfg.Logger,
		sessions: make(map[string]user),
	}
	names := make([]string, 0, len(cfg.Users))
	for name := range cfg.Users {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		s.users[name] = user{ID: i + 1, Name: name, Password: cfg.Users[name]}
	}
	if p, err := resources.NewProcess(os.Getpid()); err == nil {
		s.proc = p
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/login", s.handleLogin)
	r.Route("/user", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/proxy-upload", s.handleProxyUpload)
		r.Post("/upload-sas", s.handleUploadSAS)
	})
	r.Put("/blob/*", s.handleBlobPut)
	return r
}

// Counters returns a snapshot of the request totals.
func (s *Server) Counters() Counters {
	return Counters{
		Logins:       s.logins.Load(),
		ProxyUploads: s.proxyUploads.Load(),
		BlobPuts:     s.blobPuts.Load(),
		SASIssued:    s.sasIssued.Load(),
		Rejected:     s.rejected.Load(),
		Bytes:        s.bytes.Load(),
	}
}

// Start listens on cfg.Port in the background.
func Start(cfg ServerConfig) *http.Server {
	s := New(cfg)
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("dummy backend running", "addr", "http://localhost"+addr)
	s.log.Info("endpoints", "routes", "POST /login, POST /user/proxy-upload, POST /user/upload-sas, PUT /blob/*")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("dummy backend failed", "err", err)
		}
	}()
	return server
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid body"})
		return
	}
	u, ok := s.users[req.Username]
	if !ok || u.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
		return
	}

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = u
	s.mu.Unlock()
	s.logins.Add(1)

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sid, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Login successful",
		"username": u.Name,
		"id":       u.ID,
	})
}

type ctxUser struct{}

func withUser(ctx context.Context, u user) context.Context {
	return context.WithValue(ctx, ctxUser{}, u)
}

func userFrom(ctx context.Context) user {
	u, _ := ctx.Value(ctxUser{}).(user)
	return u
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.session(r)
		if !ok {
			s.rejected.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func (s *Server) session(r *http.Request) (user, bool) {
	ck, err := r.Cookie(sessionCookie)
	if err != nil {
		return user{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.sessions[ck.Value]
	return u, ok
}

func (s *Server) handleProxyUpload(w http.ResponseWriter, r *http.Request) {
	t0 := time.Now()
	cpuBefore, memBefore := s.usage()
	u := userFrom(r.Context())

	mr, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "expected multipart body"})
		return
	}

	var fileName, original string
	var n int64
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
			return
		}
		switch part.FormName() {
		case "fileName":
			b, _ := io.ReadAll(io.LimitReader(part, 1024))
			fileName = strings.TrimSpace(string(b))
		case "file":
			original = part.FileName()
			name := fileName
			if name == "" {
				name = original
			}
			n, err = s.store(filepath.Join("proxy", fmt.Sprintf("user-%d", u.ID), name), part)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "Failed to upload: " + err.Error()})
				return
			}
		}
		part.Close()
	}
	if n == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Empty file"})
		return
	}
	if fileName == "" {
		fileName = original
	}

	s.delay()
	metrics := s.serverMetrics(t0, cpuBefore, memBefore)
	if s.fail() {
		metrics["message"] = "Failed to upload: injected failure"
		writeJSON(w, http.StatusInternalServerError, metrics)
		return
	}
	s.proxyUploads.Add(1)
	s.bytes.Add(n)

	metrics["message"] = "Upload completed successfully"
	metrics["fileName"] = fileName
	metrics["filePath"] = fmt.Sprintf("user-%d/%s", u.ID, fileName)
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleUploadSAS(w http.ResponseWriter, r *http.Request) {
	blobName := strings.TrimSpace(r.URL.Query().Get("blobName"))
	if blobName == "" || strings.Contains(blobName, "..") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "blobName required"})
		return
	}
	u := userFrom(r.Context())
	blobPath := fmt.Sprintf("user-%d/%s", u.ID, blobName)

	claims := blobClaims{
		Path: blobPath,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.SASExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "valetbench-dummy",
		},
	}
	sig, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": err.Error()})
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	sasURL := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     "/blob/" + blobPath,
		RawQuery: url.Values{"sig": {sig}}.Encode(),
	}
	s.sasIssued.Add(1)
	writeJSON(w, http.StatusOK, map[string]any{
		"sasUrl":           sasURL.String(),
		"blobPath":         blobPath,
		"expiresInMinutes": int(s.cfg.SASExpiry / time.Minute),
	})
}

func (s *Server) handleBlobPut(w http.ResponseWriter, r *http.Request) {
	blobPath := strings.TrimPrefix(r.URL.Path, "/blob/")
	if err := s.verify(blobPath, r.URL.Query().Get("sig")); err != nil {
		s.rejected.Add(1)
		s.log.Debug("rejected blob put", "path", blobPath, "err", err)
		http.Error(w, "AuthenticationFailed: "+err.Error(), http.StatusForbidden)
		return
	}
	if r.Header.Get("x-ms-blob-type") != "BlockBlob" {
		http.Error(w, "MissingRequiredHeader: x-ms-blob-type", http.StatusBadRequest)
		return
	}

	n, err := s.store(filepath.Join("blob", blobPath), r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.delay()
	if s.fail() {
		http.Error(w, "InternalError: injected failure", http.StatusInternalServerError)
		return
	}
	s.blobPuts.Add(1)
	s.bytes.Add(n)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) verify(blobPath, sig string) error {
	if sig == "" {
		return errors.New("missing signature")
	}
	var claims blobClaims
	_, err := jwt.ParseWithClaims(sig, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.cfg.Secret, nil
	})
	if err != nil {
		return err
	}
	if claims.Path != blobPath {
		return fmt.Errorf("signature is for %q", claims.Path)
	}
	return nil
}

// store copies r into StoreDir/rel, or discards it when no dir is set.
func (s *Server) store(rel string, r io.Reader) (int64, error) {
	if s.cfg.StoreDir == "" {
		return io.Copy(io.Discard, r)
	}
	dst := filepath.Join(s.cfg.StoreDir, filepath.Clean("/" + filepath.FromSlash(rel)))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (s *Server) usage() (cpu, memMB float64) {
	if s.proc == nil {
		return 0, 0
	}
	u, err := s.proc.Snapshot()
	if err != nil {
		return 0, 0
	}
	return u.CPUPercent, u.MemoryMB
}

// serverMetrics reports averages of the readings before and after the
// upload, formatted as strings like the real backend does.
func (s *Server) serverMetrics(t0 time.Time, cpuBefore, memBefore float64) map[string]any {
	cpuAfter, memAfter := s.usage()
	return map[string]any{
		"serverTime_s":    fmt.Sprintf("%.2f", time.Since(t0).Seconds()),
		"serverCPU_pct":   fmt.Sprintf("%.1f", (cpuBefore+cpuAfter)/2),
		"serverMemory_MB": fmt.Sprintf("%.1f", (memBefore+memAfter)/2),
	}
}

func (s *Server) delay() {
	if s.cfg.Latency > 0 {
		time.Sleep(time.Duration(rand.Int64N(int64(s.cfg.Latency))))
	}
}

func (s *Server) fail() bool {
	return s.cfg.FailureRate > 0 && rand.Float64() < s.cfg.FailureRate
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
