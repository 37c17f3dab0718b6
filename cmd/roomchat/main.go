package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/redis/go-redis/v9"

	"github.com/whisper/roomchat/internal/config"
	"github.com/whisper/roomchat/internal/metrics"
	"github.com/whisper/roomchat/internal/ratelimit"
	"github.com/whisper/roomchat/internal/session"
	"github.com/whisper/roomchat/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	color.Enable = cfg.Colours

	log.Printf("roomchat starting")
	log.Printf("  transport:       %s", cfg.Transport)
	log.Printf("  relay_url:       %s", cfg.RelayURL)
	log.Printf("  nats_url:        %s", cfg.NATSURL)
	log.Printf("  typing_window:   %s", cfg.TypingWindow)
	log.Printf("  typing_throttle: %s", cfg.TypingThrottle)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)
	log.Printf("  metrics_addr:    %s", cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	mgr := transport.NewManager(newDialer(cfg))
	defer mgr.Close()

	ui := newConsole(os.Stdout)
	fatal := make(chan error, 1)
	opts := []session.Option{
		session.WithDecayWindow(cfg.TypingWindow),
		session.WithOnJoin(ui.attach),
		session.WithOnFatal(func(err error) {
			select {
			case fatal <- err:
			default:
			}
		}),
	}
	if limiter != nil {
		opts = append(opts, session.WithLimiter(limiter))
	}
	sess := session.New(mgr, opts...)

	username := cfg.Username
	if cfg.AutoJoin() {
		if err := ui.join(ctx, sess, cfg.Room, username); err != nil {
			return err
		}
	} else {
		ui.info("type /join <room> <name> to enter a room")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			ui.leave(sess)
			return nil

		case err := <-fatal:
			ui.leave(sess)
			return err

		case line, ok := <-lines:
			if !ok {
				ui.leave(sess)
				return nil
			}
			quit, err := ui.handle(ctx, sess, line, &username)
			if err != nil {
				if errors.Is(err, session.ErrTransport) {
					return err
				}
				ui.warn(err.Error())
			}
			if quit {
				ui.leave(sess)
				return nil
			}
		}
	}
}

func newDialer(cfg config.Config) transport.Dialer {
	if cfg.Transport == config.TransportNATS {
		natsConfig := transport.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.ClientID = cfg.ClientID
		natsConfig.ConnectTimeout = cfg.DialTimeout
		return transport.NewNATSDialer(natsConfig)
	}

	wsConfig := transport.DefaultWSConfig()
	wsConfig.URL = cfg.RelayURL
	wsConfig.DialTimeout = cfg.DialTimeout
	wsConfig.WriteTimeout = cfg.WriteTimeout
	wsConfig.Heartbeat = transport.HeartbeatConfig{
		Interval: cfg.HeartbeatInterval,
		Timeout:  cfg.HeartbeatTimeout,
	}
	return transport.NewWSDialer(wsConfig)
}

// newLimiter picks the typing throttle: Redis when configured and reachable,
// in-process otherwise. A zero throttle disables it.
func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func()) {
	if cfg.TypingThrottle <= 0 {
		return nil, func() {}
	}
	rule := ratelimit.TypingRule(cfg.TypingThrottle)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return ratelimit.NewRedisLimiter(rdb, rule), func() { _ = rdb.Close() }
		}
		log.Printf("redis %s unavailable, throttling in process: %v", cfg.RedisAddr, err)
		_ = rdb.Close()
	}
	return ratelimit.NewLocalLimiter(rule, nil), func() {}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	return srv
}

// parseCommand splits a slash command into its name and arguments.
func parseCommand(line string) (string, []string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, true
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
