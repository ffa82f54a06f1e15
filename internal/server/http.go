package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/tagmarks/tagmarks/internal/cluster"
	"github.com/tagmarks/tagmarks/internal/controller"
	"github.com/tagmarks/tagmarks/internal/engine"
	"github.com/tagmarks/tagmarks/internal/pkg/tagql"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"
)

// APIServer exposes the catalog, saved searches, and system surface over HTTP.
type APIServer struct {
	catalog       *engine.Catalog
	metaStore     *controller.Store
	aggregator    *cluster.Aggregator
	webDir        string // Directory for static web files
	baseURL       string // Public base URL for share links
	sessions      *SessionStore
	srv           *http.Server
	parser        fastjson.ParserPool
	ingestCounter int64 // Monotonic counter for total requests
}

func NewAPIServer(catalog *engine.Catalog, ms *controller.Store, agg *cluster.Aggregator, webDir, baseURL string) *APIServer {
	return &APIServer{
		catalog:    catalog,
		metaStore:  ms,
		aggregator: agg,
		webDir:     webDir,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessions:   NewSessionStore(24 * time.Hour),
	}
}

// StartSessionCleanup runs the background session pruning loop.
func (s *APIServer) StartSessionCleanup(ctx context.Context) {
	s.sessions.StartCleanupLoop(ctx, 10*time.Minute)
}

// Start runs the HTTP server.
func (s *APIServer) Start(addr string) error {
	mux := http.NewServeMux()

	// API routes (protected)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/system/status", s.handleSystemStatus)
	mux.HandleFunc("/api/system/init", s.handleSystemInit)
	mux.Handle("/api/system/config", s.AuthMiddleware(http.HandlerFunc(s.handleSystemConfig)))

	// User management (SuperAdmin)
	mux.Handle("/api/users", s.AuthMiddleware(http.HandlerFunc(s.handleUsers)))
	mux.Handle("/api/users/", s.AuthMiddleware(http.HandlerFunc(s.handleUserItem)))

	// Token management (Authenticated)
	mux.Handle("/api/tokens", s.AuthMiddleware(http.HandlerFunc(s.handleTokens)))
	mux.Handle("/api/tokens/", s.AuthMiddleware(http.HandlerFunc(s.handleTokenItem)))

	// Items and queries
	mux.Handle("/api/items", s.AuthMiddleware(http.HandlerFunc(s.handleItems)))
	mux.Handle("/api/items/duplicates", s.AuthMiddleware(http.HandlerFunc(s.handleDuplicates)))
	mux.Handle("/api/search", s.AuthMiddleware(http.HandlerFunc(s.handleSearch)))
	mux.Handle("/api/expr/validate", s.AuthMiddleware(http.HandlerFunc(s.handleValidate)))
	mux.Handle("/api/tags", s.AuthMiddleware(http.HandlerFunc(s.handleTags)))
	mux.Handle("/api/histogram", s.AuthMiddleware(http.HandlerFunc(s.handleHistogram)))
	mux.Handle("/api/stats", s.AuthMiddleware(http.HandlerFunc(s.handleStats)))

	// Saved searches
	mux.Handle("/api/searches", s.AuthMiddleware(http.HandlerFunc(s.handleSearches)))
	mux.Handle("/api/searches/", s.AuthMiddleware(http.HandlerFunc(s.handleSearchItem)))

	// Cluster scatter-gather (only when peers are configured)
	mux.Handle("/api/cluster/search", s.AuthMiddleware(http.HandlerFunc(s.handleClusterSearch)))
	mux.Handle("/api/cluster/histogram", s.AuthMiddleware(http.HandlerFunc(s.handleClusterHistogram)))
	mux.Handle("/api/cluster/stats", s.AuthMiddleware(http.HandlerFunc(s.handleClusterStats)))

	// Static file serving for web directory
	if s.webDir != "" {
		fs := http.FileServer(http.Dir(s.webDir))
		mux.Handle("/", fs)
	}

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// AuthMiddleware checks for a valid token in the Authorization header.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="Tagmarks"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		// Logic Branch A: API Key (from meta)
		if apiToken, exists := s.metaStore.GetTokenByValue(token); exists {
			_ = apiToken
			next.ServeHTTP(w, r)
			return
		}

		// Logic Branch B: Web Session
		if session, exists := s.sessions.Get(token); exists {
			user, exists := s.metaStore.GetUser(session.Username)
			if !exists {
				http.Error(w, "User no longer exists", http.StatusUnauthorized)
				return
			}

			// Role check for specific routes
			if strings.HasPrefix(r.URL.Path, "/api/users") {
				if user.Role != "super_admin" {
					http.Error(w, "Forbidden: SuperAdmin required", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("WWW-Authenticate", `Bearer realm="Tagmarks"`)
		http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
	})
}

// handleSystemStatus returns the system initialization status.
func (s *APIServer) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]bool{
		"initialized": s.metaStore.IsInitialized(),
	})
}

// handleSystemInit initializes the system with the first SuperAdmin.
func (s *APIServer) handleSystemInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.metaStore.IsInitialized() {
		http.Error(w, "System already initialized", http.StatusBadRequest)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}

	if err := s.metaStore.InitializeSystem(req.Username, req.Password); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.createSession(w, req.Username, "super_admin")
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, exists := s.metaStore.GetUser(req.Username)
	if !exists {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	s.createSession(w, req.Username, user.Role)
}

func (s *APIServer) createSession(w http.ResponseWriter, username, role string) {
	session := s.sessions.Create(username, role)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":    session.Token,
		"username": username,
		"role":     role,
	})
}

func (s *APIServer) handleSystemConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		json.NewEncoder(w).Encode(s.metaStore.GetConfig())
		return
	}

	if r.Method == http.MethodPost {
		var cfg controller.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if cfg.MaxSnapshots < 1 || cfg.SearchLimit < 1 {
			http.Error(w, "max_snapshots and search_limit must be positive", http.StatusBadRequest)
			return
		}

		if err := s.metaStore.UpdateConfig(cfg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		return
	}
}

func (s *APIServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := s.metaStore.GetData()
		// Strip hashes for security
		users := make([]controller.User, len(data.Users))
		for i, u := range data.Users {
			users[i] = u
			users[i].PasswordHash = ""
		}
		json.NewEncoder(w).Encode(users)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		err := s.metaStore.AddUser(controller.User{
			Username:     req.Username,
			PasswordHash: string(hash),
			Role:         req.Role,
			CreatedAt:    time.Now().Unix(),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}
}

func (s *APIServer) handleUserItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	username := parts[len(parts)-1]

	if r.Method == http.MethodDelete {
		if err := s.metaStore.DeleteUser(username); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
}

func (s *APIServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data := s.metaStore.GetData()
		json.NewEncoder(w).Encode(data.Tokens)
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		b := make([]byte, 16)
		rand.Read(b)
		tokenVal := "sk-" + hex.EncodeToString(b)

		err := s.metaStore.AddToken(controller.APIToken{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Token:     tokenVal,
			Type:      req.Type,
			CreatedBy: s.sessionUser(r),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": tokenVal})
		return
	}
}

func (s *APIServer) handleTokenItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	id := parts[len(parts)-1]

	if r.Method == http.MethodDelete {
		if err := s.metaStore.DeleteToken(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
}

// sessionUser resolves the requesting username from a web session, if any.
func (s *APIServer) sessionUser(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if session, ok := s.sessions.Get(token); ok {
		return session.Username
	}
	return ""
}

// handleItems processes POST requests with JSON items.
func (s *APIServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	atomic.AddInt64(&s.ingestCounter, 1)

	// Read body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	// Parse
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		log.Printf("JSON Parse Error: %v", err)
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	ingested := 0

	// Helper function to process a single item object
	processItem := func(val *fastjson.Value) {
		title := string(val.GetStringBytes("title"))
		if title == "" {
			return
		}

		row := engine.ItemRow{
			ID:        string(val.GetStringBytes("id")),
			CreatedAt: val.GetInt64("created_at"),
			Title:     title,
			Body:      string(val.GetStringBytes("body")),
		}
		for _, t := range val.GetArray("tags") {
			tag := string(t.GetStringBytes())
			if tag != "" {
				row.Tags = append(row.Tags, tag)
			}
		}

		s.catalog.Ingest(row)
		ingested++
	}

	// Handle batch (Array) or single (Object)
	if v.Type() == fastjson.TypeArray {
		arr, _ := v.Array()
		for _, val := range arr {
			processItem(val)
		}
	} else {
		processItem(v)
	}

	// Batch sync WAL to disk once per request
	s.catalog.SyncWAL()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"ingested": ingested})
}

// parseFilter extracts the shared filter parameters from a request.
func parseFilter(r *http.Request) engine.Filter {
	q := r.URL.Query()
	filter := engine.Filter{
		Tag:   q.Get("tag"),
		Query: q.Get("q"),
		Expr:  q.Get("expr"),
	}

	if startStr := q.Get("start"); startStr != "" {
		if val, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			filter.MinTime = val
		}
	}
	if endStr := q.Get("end"); endStr != "" {
		if val, err := strconv.ParseInt(endStr, 10, 64); err == nil {
			filter.MaxTime = val
		}
	}

	return filter
}

// handleSearch processes GET /api/search requests.
func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := parseFilter(r)

	// Reject bad expressions before scanning; the validator carries the
	// message the UI shows.
	if filter.Expr != "" {
		if v := tagql.Validate(filter.Expr); !v.Valid {
			http.Error(w, v.Error, http.StatusBadRequest)
			return
		}
	}

	// Parse limit parameter (default from config)
	limit := s.metaStore.GetConfig().SearchLimit
	if limit <= 0 {
		limit = 100
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	// Execute scan
	rows, err := s.catalog.ExecuteScan(filter, limit)
	if err != nil {
		log.Printf("Query error: %v", err)
		http.Error(w, "Query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []engine.ItemRow{}
	}

	// Return JSON
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleValidate checks expression syntax for the UI, returning the
// canonical form and referenced tags when the expression is valid.
func (s *APIServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	exprStr := r.URL.Query().Get("expr")

	type validateResponse struct {
		Valid     bool     `json:"valid"`
		Error     string   `json:"error,omitempty"`
		Canonical string   `json:"canonical,omitempty"`
		Tags      []string `json:"tags"`
	}

	resp := validateResponse{Tags: []string{}}
	if v := tagql.Validate(exprStr); !v.Valid {
		resp.Error = v.Error
	} else {
		expr, _ := tagql.Parse(exprStr)
		resp.Valid = true
		resp.Canonical = tagql.Serialize(expr)
		resp.Tags = append(resp.Tags, tagql.ExtractTags(expr)...)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleTags returns known tags with usage counts for autocomplete.
// With ?expr= it instead returns the tags referenced by that expression.
func (s *APIServer) handleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if exprStr := r.URL.Query().Get("expr"); exprStr != "" {
		expr, err := tagql.Parse(exprStr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tags := tagql.ExtractTags(expr)
		if tags == nil {
			tags = []string{}
		}
		json.NewEncoder(w).Encode(tags)
		return
	}

	type tagCount struct {
		Tag   string `json:"tag"`
		Count int    `json:"count"`
	}

	stats := s.catalog.GetStats()
	counts := make([]tagCount, 0, len(stats.TagCounts))
	for tag, count := range stats.TagCounts {
		counts = append(counts, tagCount{Tag: tag, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Tag < counts[j].Tag
	})

	json.NewEncoder(w).Encode(counts)
}

// handleDuplicates returns groups of items with colliding titles.
func (s *APIServer) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	groups, err := s.catalog.FindDuplicateTitles()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []engine.DuplicateGroup{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(groups)
}

// handleSearches lists and creates saved searches.
func (s *APIServer) handleSearches(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.metaStore.ListSavedSearches())
		return
	}

	if r.Method == http.MethodPost {
		var req struct {
			Name       string `json:"name"`
			Expression string `json:"expression"`
			Query      string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "Name required", http.StatusBadRequest)
			return
		}

		search, err := s.metaStore.AddSavedSearch(controller.SavedSearch{
			ID:         uuid.NewString(),
			Name:       req.Name,
			Expression: req.Expression,
			Query:      req.Query,
			CreatedBy:  s.sessionUser(r),
		})
		if err != nil {
			if errors.Is(err, controller.ErrInvalidExpression) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(search)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleSearchItem serves a single saved search, its share link, or deletes it.
func (s *APIServer) handleSearchItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// Path shapes: api/searches/{id} or api/searches/{id}/link
	wantLink := false
	id := parts[len(parts)-1]
	if id == "link" && len(parts) >= 2 {
		wantLink = true
		id = parts[len(parts)-2]
	}

	search, ok := s.metaStore.GetSavedSearch(id)
	if !ok {
		http.Error(w, "Saved search not found", http.StatusNotFound)
		return
	}

	switch {
	case r.Method == http.MethodGet && wantLink:
		// The engine never encodes: the link owner percent-encodes the
		// canonical serialization into the query parameter here.
		params := url.Values{}
		params.Set("expr", search.Expression)
		if search.Query != "" {
			params.Set("q", search.Query)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"url": s.baseURL + "/?" + params.Encode(),
		})

	case r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(search)

	case r.Method == http.MethodDelete:
		if err := s.metaStore.DeleteSavedSearch(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()

	// Defaults: last 24h, 1h buckets (timestamps in nanos)
	end := time.Now().UnixNano()
	start := end - (24 * time.Hour).Nanoseconds()
	var interval int64 = (1 * time.Hour).Nanoseconds()

	if startStr := q.Get("start"); startStr != "" {
		if val, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			start = val * 1_000_000 // Convert ms to nanos
		}
	}
	if endStr := q.Get("end"); endStr != "" {
		if val, err := strconv.ParseInt(endStr, 10, 64); err == nil {
			end = val * 1_000_000 // Convert ms to nanos
		}
	}
	if intervalStr := q.Get("interval"); intervalStr != "" {
		// The bucket math divides by the interval; cap keeps the
		// seconds-to-nanos conversion from overflowing int64.
		val, err := strconv.ParseInt(intervalStr, 10, 64)
		if err != nil || val <= 0 || val > math.MaxInt64/1_000_000_000 {
			http.Error(w, "Invalid interval: must be a positive number of seconds", http.StatusBadRequest)
			return
		}
		interval = val * 1_000_000_000 // Convert seconds to nanos
	}

	filter := engine.Filter{
		MinTime: start,
		MaxTime: end,
		Tag:     q.Get("tag"),
		Query:   q.Get("q"),
		Expr:    q.Get("expr"),
	}

	points, err := s.catalog.ComputeHistogram(start, end, interval, filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if points == nil {
		points = []engine.HistogramPoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(points); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleStats calculates system statistics.
func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.catalog.GetStats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleClusterSearch fans a search out to all configured peer nodes.
func (s *APIServer) handleClusterSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.aggregator == nil {
		http.Error(w, "No peer nodes configured", http.StatusNotFound)
		return
	}

	if expr := r.URL.Query().Get("expr"); expr != "" {
		if v := tagql.Validate(expr); !v.Valid {
			http.Error(w, v.Error, http.StatusBadRequest)
			return
		}
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := s.aggregator.Search(cluster.QueryParams{
		RawQuery: r.URL.RawQuery,
		Limit:    limit,
		Auth:     r.Header.Get("Authorization"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if rows == nil {
		rows = []engine.ItemRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// handleClusterHistogram fans a histogram query out to all peer nodes.
func (s *APIServer) handleClusterHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.aggregator == nil {
		http.Error(w, "No peer nodes configured", http.StatusNotFound)
		return
	}

	points, err := s.aggregator.Histogram(cluster.QueryParams{
		RawQuery: r.URL.RawQuery,
		Auth:     r.Header.Get("Authorization"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if points == nil {
		points = []engine.HistogramPoint{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

// handleClusterStats merges stats from all peer nodes.
func (s *APIServer) handleClusterStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.aggregator == nil {
		http.Error(w, "No peer nodes configured", http.StatusNotFound)
		return
	}

	stats, err := s.aggregator.Stats(r.Header.Get("Authorization"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
