package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ftpmanager/config"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Runner runs the configured sync jobs on their cron schedules. Jobs that
// share a profile share one Client, so their transfers queue behind each other.
type Runner struct {
	Jobs     []config.Job
	Profiles map[string]config.Profile
	History  *HistoryManager
	Cron     *cron.Cron

	// RunOnStart triggers every job once when Start is called.
	RunOnStart bool

	logger  *zap.Logger
	opts    []Option
	mu      sync.Mutex
	clients map[string]*profileClient
	wg      sync.WaitGroup
}

// profileClient serializes connects for one profile without holding up the
// others.
type profileClient struct {
	connectMu sync.Mutex
	client    *Client
}

func NewRunner(cfg *config.Config, history *HistoryManager, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	profiles := make(map[string]config.Profile, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profiles[p.Name] = p
	}
	cl := cronLogger{s: logger.Sugar()}
	return &Runner{
		Jobs:       cfg.Jobs,
		Profiles:   profiles,
		History:    history,
		Cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		RunOnStart: true,
		logger:     logger,
		opts:       append([]Option{WithLogger(logger), WithTimeouts(cfg.Timeouts)}, opts...),
		clients:    make(map[string]*profileClient),
	}
}

// Client returns the client shared by jobs of the named profile.
func (r *Runner) Client(profile string) *Client {
	return r.entry(profile).client
}

func (r *Runner) entry(profile string) *profileClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.clients[profile]
	if !ok {
		pc = &profileClient{client: NewClient(r.opts...)}
		r.clients[profile] = pc
	}
	return pc
}

// RunJob connects if needed and syncs the job's folder.
func (r *Runner) RunJob(ctx context.Context, job config.Job) error {
	start := time.Now()
	err := r.runJob(ctx, job)
	if r.History != nil {
		r.History.Record(job.Name, start, err)
	}
	if err != nil {
		r.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		return err
	}
	r.logger.Info("job finished", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)))
	return nil
}

func (r *Runner) runJob(ctx context.Context, job config.Job) error {
	profile, ok := r.Profiles[job.Profile]
	if !ok {
		return fmt.Errorf("job %s: unknown profile %s", job.Name, job.Profile)
	}
	pc := r.entry(job.Profile)
	c := pc.client

	pc.connectMu.Lock()
	var err error
	if !c.IsConnected() {
		err = c.Connect(ctx, profile)
	}
	pc.connectMu.Unlock()
	if err != nil {
		return err
	}
	return c.SyncFolder(ctx, job.LocalPath, job.RemotePath)
}

func (r *Runner) Start() error {
	for _, job := range r.Jobs {
		_, err := r.Cron.AddFunc(job.Cron, func() {
			r.RunJob(context.Background(), job)
		})
		if err != nil {
			return fmt.Errorf("schedule job %s: %w", job.Name, err)
		}
		r.logger.Info("scheduled job", zap.String("job", job.Name), zap.String("cron", job.Cron))
	}

	if r.RunOnStart {
		for _, job := range r.Jobs {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.RunJob(context.Background(), job)
			}()
		}
	}
	r.Cron.Start()
	return nil
}

// Stop waits for running jobs, disconnects every client and saves history.
func (r *Runner) Stop(ctx context.Context) error {
	select {
	case <-r.Cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	jobsDone := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(jobsDone)
	}()
	select {
	case <-jobsDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, pc := range r.clients {
		clients = append(clients, pc.client)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if err := c.Disconnect(ctx); err != nil {
			r.logger.Warn("disconnect failed", zap.Error(err))
		}
	}
	if r.History != nil {
		return r.History.Save()
	}
	return nil
}
