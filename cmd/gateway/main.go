package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer"
	lbdomain "github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"
	lbinfra "github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/infra"
	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit"
	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/application"
	ratedomain "github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"
	rateinfra "github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/infra"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := readConfig()
	if err != nil {
		log.Fatal("config error", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- admissão ---

	global := rateinfra.NewWindowStore(ratedomain.Config{
		Window:         cfg.rateWindow,
		Max:            cfg.rateMax,
		SkipSuccessful: cfg.skipSuccessful,
		SkipFailed:     cfg.skipFailed,
	})
	global.StartJanitor(ctx)

	svc := application.NewScopedService(global)
	for event, max := range cfg.rateEvents {
		lim := rateinfra.NewWindowStore(ratedomain.Config{Window: cfg.rateWindow, Max: max})
		lim.StartJanitor(ctx)
		svc.RegisterEvent(event, lim)
	}

	var statsStore ratedomain.StatsStore
	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			log.Fatal("redis stats ping error", zap.Error(err))
		}

		statsStore = rateinfra.NewRedisStatsStore(
			rdb,
			rateinfra.WithStatsPrefix(cfg.rateStatsPrefix),
			rateinfra.WithStatsTTL(cfg.rateStatsTTL),
			rateinfra.WithStatsBucket(cfg.rateStatsBucket),
			rateinfra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
	}

	// --- balanceamento ---

	strategy := strategyByName(cfg.lbStrategy)
	if strategy == nil {
		log.Fatal("unknown LB_STRATEGY", zap.String("strategy", cfg.lbStrategy))
	}

	lb := loadbalancer.New(
		loadbalancer.WithStrategy(strategy),
		loadbalancer.WithProber(lbinfra.NewHTTPProber(
			cfg.probeTimeout,
			lbinfra.WithProbePath(cfg.probePath),
			lbinfra.WithProbePacing(cfg.probeRPS, cfg.probeBurst),
		)),
		loadbalancer.WithHealthInterval(cfg.healthInterval),
		loadbalancer.WithProbeTimeout(cfg.probeTimeout),
		loadbalancer.WithLogger(log),
		loadbalancer.WithListener(notificationLogger(log)),
	)
	for _, node := range cfg.backends {
		if !lb.AddServer(node) {
			log.Fatal("invalid backend entry", zap.String("id", node.ID))
		}
	}
	lb.StartHealthChecks(ctx)

	// --- cadeia HTTP ---

	g := &gateway{lb: lb, log: log, sticky: cfg.stickyEnabled, cookie: cfg.stickyCookie}
	g.proxy = &httputil.ReverseProxy{
		Director:       g.direct,
		ModifyResponse: g.observeResponse,
		ErrorHandler:   g.observeError,
	}

	h := http.Handler(g)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Service:             svc,
		Stats:               statsStore,
		DescriptorHeader:    cfg.descriptorHeader,
		TrustXForwardedFor:  cfg.trustXFF,
		EventHeader:         cfg.eventHeader,
		AddRateLimitHeaders: cfg.addHeaders,
	})(h)

	mux := http.NewServeMux()
	mux.Handle("/", h)
	mux.HandleFunc("/_gateway/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/_gateway/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Balancer  loadbalancer.Stats                 `json:"balancer"`
			Servers   loadbalancer.ServerStatus          `json:"servers"`
			Admission map[string]ratedomain.LimiterStats `json:"admission"`
		}{
			Balancer:  lb.GetLoadBalancingStats(),
			Servers:   lb.GetServerStatus(),
			Admission: svc.Stats(),
		})
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.Int("backends", len(cfg.backends)),
		zap.String("strategy", cfg.lbStrategy),
		zap.Duration("rateWindow", cfg.rateWindow),
		zap.Int("rateMax", cfg.rateMax),
		zap.Bool("sticky", cfg.stickyEnabled))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

type ctxNodeKey struct{}

// gateway despacha cada requisição admitida para um backend escolhido pelo
// balanceador, com colchete de conexão (increment na entrada, decrement na
// saída) e feedback de sucesso/falha para o circuit breaker.
type gateway struct {
	lb     *loadbalancer.Balancer
	proxy  *httputil.ReverseProxy
	log    *zap.Logger
	sticky bool
	cookie string
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	node := g.pick(w, r)
	if node == nil {
		// exaustão de capacidade: retryable, não erro de backend
		w.Header().Set("Retry-After", "1")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	g.lb.IncrementConnection(node.ID)
	defer g.lb.DecrementConnection(node.ID)

	ctx := context.WithValue(r.Context(), ctxNodeKey{}, node)
	g.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// pick resolve o backend: afinidade de sessão primeiro, estratégia depois.
func (g *gateway) pick(w http.ResponseWriter, r *http.Request) *lbdomain.Node {
	if !g.sticky {
		return g.lb.SelectServer()
	}

	session := ""
	if c, err := r.Cookie(g.cookie); err == nil {
		session = c.Value
	}
	if session != "" {
		if n := g.lb.GetStickyServer(session); n != nil {
			return n
		}
	}

	n := g.lb.SelectServer()
	if n == nil {
		return nil
	}
	if session == "" {
		session = uuid.NewString()
		http.SetCookie(w, &http.Cookie{Name: g.cookie, Value: session, Path: "/", HttpOnly: true})
	}
	g.lb.AssignStickySession(session, n.ID)
	return n
}

func (g *gateway) direct(req *http.Request) {
	node := req.Context().Value(ctxNodeKey{}).(*lbdomain.Node)
	req.URL.Scheme = "http"
	req.URL.Host = node.Addr()
}

func (g *gateway) observeResponse(resp *http.Response) error {
	node := resp.Request.Context().Value(ctxNodeKey{}).(*lbdomain.Node)
	if resp.StatusCode >= http.StatusInternalServerError {
		g.lb.RecordFailure(node.ID)
	} else {
		g.lb.RecordSuccess(node.ID)
	}
	return nil
}

func (g *gateway) observeError(w http.ResponseWriter, r *http.Request, err error) {
	node := r.Context().Value(ctxNodeKey{}).(*lbdomain.Node)
	g.lb.RecordFailure(node.ID)
	g.log.Warn("proxy error", zap.String("server", node.ID), zap.Error(err))
	http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
}

// notificationLogger traduz o conjunto fechado de notificações em log
// estruturado.
func notificationLogger(log *zap.Logger) lbdomain.Listener {
	return func(n lbdomain.Notification) {
		switch ev := n.(type) {
		case lbdomain.ServerHealthChanged:
			log.Info("server health changed",
				zap.String("server", ev.ServerID),
				zap.Bool("healthy", ev.Healthy),
				zap.Duration("responseTime", ev.ResponseTime))
		case lbdomain.CircuitOpened:
			log.Warn("circuit opened", zap.String("server", ev.ServerID), zap.Int("failures", ev.Failures))
		case lbdomain.CircuitClosed:
			log.Info("circuit closed", zap.String("server", ev.ServerID))
		case lbdomain.NoServerAvailable:
			log.Warn("no server available", zap.String("strategy", ev.Strategy))
		}
	}
}

func strategyByName(name string) lbdomain.Strategy {
	switch name {
	case "round-robin":
		return lbinfra.NewRoundRobin()
	case "least-connections":
		return lbinfra.NewLeastConnections()
	case "weighted-round-robin":
		return lbinfra.NewWeightedRoundRobin()
	case "performance":
		return lbinfra.NewPerformanceBased()
	default:
		return nil
	}
}

type config struct {
	listenAddr string
	backends   []lbdomain.NodeConfig

	rateWindow     time.Duration
	rateMax        int
	rateEvents     map[string]int
	skipSuccessful bool
	skipFailed     bool

	descriptorHeader string
	eventHeader      string
	trustXFF         bool
	addHeaders       bool

	lbStrategy     string
	healthInterval time.Duration
	probeTimeout   time.Duration
	probePath      string
	probeRPS       float64
	probeBurst     int

	stickyEnabled bool
	stickyCookie  string

	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")

	backends, err := parseBackends(os.Getenv("BACKENDS"))
	if err != nil {
		return config{}, err
	}
	cfg.backends = backends

	cfg.rateWindow = getenvDurationDefault("RATE_WINDOW", time.Minute)
	cfg.rateMax = getenvIntDefault("RATE_MAX", 100)
	cfg.rateEvents, err = parseEventLimits(os.Getenv("RATE_EVENTS"))
	if err != nil {
		return config{}, err
	}
	cfg.skipSuccessful = getenvBoolDefault("RATE_SKIP_SUCCESSFUL", false)
	cfg.skipFailed = getenvBoolDefault("RATE_SKIP_FAILED", false)

	cfg.descriptorHeader = getenvDefault("RATE_DESCRIPTOR_HEADER", "User-Agent")
	cfg.eventHeader = getenvDefault("RATE_EVENT_HEADER", "X-Signal-Event")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.lbStrategy = getenvDefault("LB_STRATEGY", "round-robin")
	cfg.healthInterval = getenvDurationDefault("HEALTH_INTERVAL", 30*time.Second)
	cfg.probeTimeout = getenvDurationDefault("PROBE_TIMEOUT", 5*time.Second)
	cfg.probePath = getenvDefault("PROBE_PATH", "/healthz")
	cfg.probeRPS = getenvFloatDefault("PROBE_RPS", 50)
	cfg.probeBurst = getenvIntDefault("PROBE_BURST", 10)

	cfg.stickyEnabled = getenvBoolDefault("STICKY_ENABLED", true)
	cfg.stickyCookie = getenvDefault("STICKY_COOKIE", "lb_session")

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", "")
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", 0)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "admission:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return config{}, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if cfg.rateWindow <= 0 {
		return config{}, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.rateMax <= 0 {
		return config{}, errors.New("RATE_MAX must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

// parseBackends lê BACKENDS no formato
// "id=host:porta[:peso[:maxconn]];id=host:porta...".
func parseBackends(raw string) ([]lbdomain.NodeConfig, error) {
	var out []lbdomain.NodeConfig
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, errors.New("BACKENDS: entry without id: " + entry)
		}

		parts := strings.Split(rest, ":")
		if len(parts) < 2 {
			return nil, errors.New("BACKENDS: entry without host:port: " + entry)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil || port <= 0 {
			return nil, errors.New("BACKENDS: invalid port in entry: " + entry)
		}

		node := lbdomain.NodeConfig{ID: strings.TrimSpace(id), Host: parts[0], Port: port}
		if len(parts) > 2 {
			if node.Weight, err = strconv.Atoi(parts[2]); err != nil || node.Weight <= 0 {
				return nil, errors.New("BACKENDS: invalid weight in entry: " + entry)
			}
		}
		if len(parts) > 3 {
			if node.MaxConnections, err = strconv.Atoi(parts[3]); err != nil || node.MaxConnections <= 0 {
				return nil, errors.New("BACKENDS: invalid maxconn in entry: " + entry)
			}
		}
		out = append(out, node)
	}
	if len(out) == 0 {
		return nil, errors.New("BACKENDS is required (id=host:port[:weight[:maxconn]];...)")
	}
	return out, nil
}

// parseEventLimits lê RATE_EVENTS no formato "evento=max,evento=max".
func parseEventLimits(raw string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		event, limit, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.New("RATE_EVENTS: entry without limit: " + pair)
		}
		max, err := strconv.Atoi(limit)
		if err != nil || max <= 0 {
			return nil, errors.New("RATE_EVENTS: invalid limit: " + pair)
		}
		out[strings.TrimSpace(event)] = max
	}
	return out, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
