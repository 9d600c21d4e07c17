package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"collabtext/internal/auth"
	"collabtext/internal/config"
	"collabtext/internal/discovery"
	"collabtext/internal/dispatch"
	"collabtext/internal/editor"
	"collabtext/internal/messenger"
	"collabtext/internal/protocol"
)

const discoverTimeout = 3 * time.Second

func main() {
	if err := mainInner(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.LoadAgent(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Find the relay ---
	if cfg.Discover {
		relayURL, err := discover(ctx, log)
		if err != nil {
			return err
		}
		cfg.RelayURL = relayURL
	}

	// --- Authenticate ---
	token, err := authenticate(ctx, cfg, log)
	if err != nil {
		return err
	}

	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	user := editor.UserID(cfg.UserID)
	if user == "" {
		user = editor.UserID(uuid.NewString())
	}

	// --- Pipeline: logger -> relay -> reducer ---
	m := messenger.New(messenger.Options{URL: cfg.RelayURL, Codec: codec, Token: token, Log: log})
	relay := dispatch.NewRelay(m, dispatch.RelayOptions{
		SnapshotInterval: time.Duration(cfg.SnapshotInterval),
		Log:              log,
	})
	defer relay.Close()
	store := dispatch.NewStore(
		editor.DefaultState(editor.UUIDGenerator{}),
		&dispatch.Logger{Log: log, Dump: cfg.DumpState},
		relay,
	)

	s := &session{store: store, gen: editor.UUIDGenerator{}, user: user, out: os.Stdout}
	store.Subscribe(s.watch)

	if err := m.Connect(ctx); err != nil {
		return fmt.Errorf("connect to relay %s: %w", cfg.RelayURL, err)
	}
	defer m.Close()
	log.Info("connected", "relay", cfg.RelayURL, "codec", codec.Name(), "user", user)

	return repl(ctx, s, os.Stdin, log)
}

// repl reads commands until quit, end of input or ctx is done.
func repl(ctx context.Context, s *session, in io.Reader, log *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := s.handle(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				log.Warn(err.Error())
			}
		}
	}
}

func discover(ctx context.Context, log *slog.Logger) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()
	peers, err := discovery.Browse(ctx, log)
	if err != nil {
		return "", err
	}
	if len(peers) == 0 {
		return "", errors.New("no relay found on the local network")
	}
	log.Info("discovered relay", "instance", peers[0].Instance, "url", peers[0].URL())
	return peers[0].URL(), nil
}

// authenticate returns a token for the relay: the stored one when the auth
// service still accepts it, otherwise a fresh one when an email is
// configured. The password is read from COLLABTEXT_PASSWORD.
func authenticate(ctx context.Context, cfg config.Agent, log *slog.Logger) (string, error) {
	base := cfg.AuthURL
	if base == "" {
		base = httpBase(cfg.RelayURL)
	}
	client := &auth.Client{BaseURL: base}
	file := auth.TokenFile(cfg.TokenFile)

	token, err := file.Load()
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	if token != "" {
		ok, err := client.Validate(ctx, token)
		if err != nil {
			log.Warn("token validation failed", "err", err)
		}
		if ok {
			return token, nil
		}
	}

	if cfg.Email == "" {
		return "", nil
	}
	token, err = client.Login(ctx, cfg.Email, os.Getenv("COLLABTEXT_PASSWORD"))
	if err != nil {
		return "", fmt.Errorf("login as %s: %w", cfg.Email, err)
	}
	if err := file.Save(token); err != nil {
		log.Warn("could not store token", "file", cfg.TokenFile, "err", err)
	}
	return token, nil
}

// httpBase maps ws://host/ws to http://host.
func httpBase(relayURL string) string {
	u, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""
	return u.String()
}
