package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"chui/internal/api"
	"chui/internal/client"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type SimConfig struct {
	NumUsers       int
	SimulationTime time.Duration
	// Sends per second across all simulated users.
	MessageRate float64
	// Fraction of actions that read (inbox or conversation) instead of send.
	ReadRatio float64
	// Zipf exponent for recipient popularity; must be > 1.
	ZipfS     float64
	Workers   int
	Password  string
	ServerURL string
	Prefix    string
}

func DefaultConfig() SimConfig {
	return SimConfig{
		NumUsers:       50,
		SimulationTime: time.Minute,
		MessageRate:    20,
		ReadRatio:      0.3,
		ZipfS:          1.07,
		Workers:        5,
		Password:       "testpass123",
		ServerURL:      "http://localhost:8080",
		Prefix:         "sim",
	}
}

type SimulationStats struct {
	mu               sync.Mutex
	StartTime        time.Time
	TotalRequests    int64
	SuccessRequests  int64
	FailedRequests   int64
	MessagesSent     int64
	InboxReads       int64
	ConversationRead int64
	StaleSummaries   int64
	errorsByCode     map[string]int64
	latencies        []time.Duration
}

// SimulatedUser is one registered account and its signed-in session.
type SimulatedUser struct {
	Username string
	Session  *client.Session
}

type Simulator struct {
	config  SimConfig
	client  *client.Client
	stats   *SimulationStats
	users   []*SimulatedUser
	limiter *rate.Limiter

	rngMu sync.Mutex
	rng   *rand.Rand
	zipf  *rand.Zipf
}

func NewSimulator(config SimConfig) *Simulator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MessageRate <= 0 {
		config.MessageRate = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Simulator{
		config: config,
		client: client.New(config.ServerURL, 10*time.Second),
		stats: &SimulationStats{
			StartTime:    time.Now(),
			errorsByCode: make(map[string]int64),
		},
		limiter: rate.NewLimiter(rate.Limit(config.MessageRate), config.Workers),
		rng:     rng,
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	log.Info().Str("server", s.config.ServerURL).Int("users", s.config.NumUsers).Msg("Starting simulation")

	if err := s.createUsers(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if len(s.users) < 2 {
		return fmt.Errorf("need at least 2 users, registered %d", len(s.users))
	}
	// Zipf over recipients: low indexes are the popular users. One slot
	// fewer than users since the sender is skipped.
	s.zipf = rand.NewZipf(s.rng, s.config.ZipfS, 1, uint64(len(s.users)-2))
	if s.zipf == nil {
		return fmt.Errorf("zipf exponent must be > 1, got %v", s.config.ZipfS)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

// createUsers registers NumUsers accounts with bounded concurrency. Names
// already taken from an earlier run are signed in instead.
func (s *Simulator) createUsers(ctx context.Context) error {
	log.Info().Int("users", s.config.NumUsers).Msg("Registering users")

	users := make([]*SimulatedUser, s.config.NumUsers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	for i := 0; i < s.config.NumUsers; i++ {
		i := i
		g.Go(func() error {
			name := fmt.Sprintf("%s%d", s.config.Prefix, i)
			session, err := s.signUp(gctx, name)
			if err != nil {
				log.Warn().Err(err).Str("username", name).Msg("Failed to register user")
				return nil
			}
			users[i] = &SimulatedUser{Username: session.Username, Session: session}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, u := range users {
		if u != nil {
			s.users = append(s.users, u)
		}
	}
	log.Info().Int("registered", len(s.users)).Msg("Users ready")
	return nil
}

func (s *Simulator) signUp(ctx context.Context, name string) (*client.Session, error) {
	var session *client.Session
	err := s.timed(func() error {
		var err error
		session, err = s.client.Register(ctx, api.RegisterRequest{Username: name, Password: s.config.Password})
		return err
	})
	if err == nil {
		return session, nil
	}
	err = s.timed(func() error {
		var err error
		session, err = s.client.Login(ctx, name, s.config.Password)
		return err
	})
	return session, err
}

// timed runs one request and records its outcome.
func (s *Simulator) timed(fn func() error) error {
	start := time.Now()
	err := fn()
	s.stats.record(time.Since(start), err)
	return err
}

func (st *SimulationStats) record(latency time.Duration, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.TotalRequests++
	st.latencies = append(st.latencies, latency)
	if err != nil {
		st.FailedRequests++
		st.errorsByCode[errorCode(err)]++
	} else {
		st.SuccessRequests++
	}
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			log.Info().
				Float64("req_per_sec", m.RequestsPerSecond).
				Int64("sent", m.MessagesSent).
				Int64("failed", m.ErrorCount).
				Dur("p50", m.P50Latency).
				Dur("p99", m.P99Latency).
				Msg("Simulation progress")
		}
	}
}

type SimulationMetrics struct {
	TotalUsers        int
	TotalRequests     int64
	MessagesSent      int64
	InboxReads        int64
	ConversationReads int64
	StaleSummaries    int64
	ErrorCount        int64
	ErrorsByCode      map[string]int64
	AverageLatency    time.Duration
	P50Latency        time.Duration
	P99Latency        time.Duration
	RequestsPerSecond float64
}

func (s *Simulator) GetMetrics() SimulationMetrics {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	elapsed := time.Since(s.stats.StartTime)
	codes := make(map[string]int64, len(s.stats.errorsByCode))
	for k, v := range s.stats.errorsByCode {
		codes[k] = v
	}
	avg, p50, p99 := latencySummary(s.stats.latencies)

	return SimulationMetrics{
		TotalUsers:        len(s.users),
		TotalRequests:     s.stats.TotalRequests,
		MessagesSent:      s.stats.MessagesSent,
		InboxReads:        s.stats.InboxReads,
		ConversationReads: s.stats.ConversationRead,
		StaleSummaries:    s.stats.StaleSummaries,
		ErrorCount:        s.stats.FailedRequests,
		ErrorsByCode:      codes,
		AverageLatency:    avg,
		P50Latency:        p50,
		P99Latency:        p99,
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}

func latencySummary(latencies []time.Duration) (avg, p50, p99 time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, l := range sorted {
		total += l
	}
	return total / time.Duration(len(sorted)), percentile(sorted, 0.50), percentile(sorted, 0.99)
}

// percentile uses nearest rank on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
