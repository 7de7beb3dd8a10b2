package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ftpmanager/config"
	"ftpmanager/core"
	"ftpmanager/logging"
	"ftpmanager/metrics"
)

const usage = `usage: ftpmanager [flags] <command> [args]

commands:
  ls [remote]                 list a remote folder
  put <local...> <remote>     upload files
  get <remote> <local>        download a file
  putdir <local> <remote>     upload a folder
  getdir <remote> <local>     download a folder
  sync <local> <remote>       push a local folder to the remote
  rm <remote...>              delete remote files
  rmdir <remote>              delete a remote folder
  mkdir <remote>              create a remote folder
  profiles [list|add|rm]      manage connection profiles
  serve                       run scheduled jobs and expose /metrics

flags:
`

func main() {
	configPath := flag.String("config", "config.toml", "Path to config file")
	profileName := flag.String("profile", "", "Connection profile (defaults to the only profile)")
	historyPath := flag.String("history", "history.json", "Path to job history file")
	metricsAddr := flag.String("metrics", ":9108", "Listen address for /metrics in serve mode")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// 1. Load config
	store, err := config.OpenStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := store.Config()

	// 2. Init logging
	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logger := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "profiles":
		err = runProfiles(store, args)
	case "serve":
		err = serve(ctx, &cfg, *historyPath, *metricsAddr, logger)
	default:
		err = runCommand(ctx, &cfg, *profileName, cmd, args, logger)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

func pickProfile(cfg *config.Config, name string) (config.Profile, error) {
	if name == "" {
		if len(cfg.Profiles) != 1 {
			return config.Profile{}, fmt.Errorf("-profile is required when %d profiles are configured", len(cfg.Profiles))
		}
		return cfg.Profiles[0], nil
	}
	for _, p := range cfg.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return config.Profile{}, fmt.Errorf("unknown profile %q", name)
}

func need(cmd string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func runCommand(ctx context.Context, cfg *config.Config, profileName, cmd string, args []string, logger *zap.Logger) error {
	profile, err := pickProfile(cfg, profileName)
	if err != nil {
		return err
	}

	client := core.NewClient(core.WithLogger(logger), core.WithTimeouts(cfg.Timeouts))
	if err := client.Connect(ctx, profile); err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	switch cmd {
	case "ls":
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		entries, err := client.ListFiles(ctx, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			kind := "-"
			if e.IsDir {
				kind = "d"
			}
			fmt.Printf("%s %10d %s %s\n", kind, e.Size, e.ModTime.Format(time.DateTime), e.Path)
		}
		return nil

	case "put":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		locals, remote := args[:len(args)-1], args[len(args)-1]
		if len(locals) == 1 {
			return client.UploadFile(ctx, locals[0], remote)
		}
		items := make([]core.Transfer, len(locals))
		for i, l := range locals {
			items[i] = core.Transfer{LocalPath: l, RemotePath: path.Join(remote, filepath.Base(l))}
		}
		return report(client.UploadFiles(ctx, items))

	case "get":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		return client.DownloadFile(ctx, args[0], args[1])

	case "putdir":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		return client.UploadFolder(ctx, args[0], args[1])

	case "getdir":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		return client.DownloadFolder(ctx, args[0], args[1])

	case "sync":
		if err := need(cmd, args, 2); err != nil {
			return err
		}
		return client.SyncFolder(ctx, args[0], args[1])

	case "rm":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		if len(args) == 1 {
			return client.DeleteFile(ctx, args[0])
		}
		return report(client.DeleteFiles(ctx, args))

	case "rmdir":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return client.DeleteFolder(ctx, args[0])

	case "mkdir":
		if err := need(cmd, args, 1); err != nil {
			return err
		}
		return client.CreateDirectory(ctx, args[0])
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func report(res core.BatchResult) error {
	for _, item := range res.Succeeded {
		fmt.Printf("ok     %s\n", item.Path)
	}
	for _, item := range res.Failed {
		fmt.Printf("failed %s: %v\n", item.Path, item.Err)
	}
	return res.Err()
}

func runProfiles(store *config.Store, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		for _, name := range store.Names() {
			p, _ := store.Get(name)
			fmt.Printf("%-16s %-5s %s%s\n", p.Name, p.Protocol, p.Addr(), p.Path)
		}
		return nil

	case "add":
		fs := flag.NewFlagSet("profiles add", flag.ContinueOnError)
		var p config.Profile
		fs.StringVar(&p.Name, "name", "", "Profile name")
		fs.StringVar(&p.Protocol, "protocol", "ftp", "ftp, sftp or local")
		fs.StringVar(&p.Host, "host", "", "Server host")
		fs.IntVar(&p.Port, "port", 0, "Server port (default per protocol)")
		fs.StringVar(&p.User, "user", "", "Login user")
		fs.StringVar(&p.Password, "password", "", "Login password")
		fs.StringVar(&p.Path, "path", "/", "Remote root")
		fs.BoolVar(&p.Secure, "secure", false, "Use explicit TLS (ftp only)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := store.Add(p); err != nil {
			return err
		}
		return store.Save()

	case "rm":
		if len(args) != 1 {
			return errors.New("profiles rm: expected a profile name")
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		return store.Save()
	}
	return fmt.Errorf("unknown profiles command %q", sub)
}

func serve(ctx context.Context, cfg *config.Config, historyPath, metricsAddr string, logger *zap.Logger) error {
	// 1. Init history
	hm := core.NewHistoryManager(historyPath)
	if err := hm.Load(); err != nil {
		logger.Warn("failed to load history", zap.Error(err))
	}

	// 2. Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 3. Start runner
	runner := core.NewRunner(cfg, hm, logger)
	if err := runner.Start(); err != nil {
		srv.Close()
		return err
	}
	logger.Info("ftpmanager started", zap.Int("jobs", len(cfg.Jobs)), zap.String("metrics", metricsAddr))

	// 4. Wait for signal
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	return runner.Stop(shutdownCtx)
}
