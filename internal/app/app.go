package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/five82/mochiyoru/internal/board"
	"github.com/five82/mochiyoru/internal/cache"
	"github.com/five82/mochiyoru/internal/config"
	"github.com/five82/mochiyoru/internal/gateway"
	"github.com/five82/mochiyoru/internal/identity"
	"github.com/five82/mochiyoru/internal/live"
	"github.com/five82/mochiyoru/internal/logging"
	"github.com/five82/mochiyoru/internal/prefs"
	"github.com/five82/mochiyoru/internal/state"
	"github.com/five82/mochiyoru/internal/ui"
)

// Options configure the client application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses ~/.config/mochiyoru/prefs.toml
	Location   string // share URL, path with query, or bare group id
	PollEvery  int    // seconds; zero uses the configured interval
	// ShareOnly resolves the group, writes its share URL to Out and exits.
	ShareOnly bool
	Out       io.Writer
}

// Session is a wired, opened board with everything it depends on.
type Session struct {
	Config  config.Config
	Board   *board.Board
	Store   *state.Store
	Address *identity.Address
	Logger  *log.Logger

	closers []io.Closer
}

// Close flushes pending edits and releases the cache and log file.
func (s *Session) Close() error {
	s.Board.Close()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ShareURL returns the canonical link of the active group, or "" while it
// only has a placeholder id.
func (s *Session) ShareURL() string {
	ref := s.Board.Group()
	if !ref.Confirmed() {
		return ""
	}
	return identity.ShareURL(s.Config.Client.ShareRoot(), ref.ID)
}

// NewOrigin returns a fresh client origin id.
func NewOrigin() string {
	return strings.ToLower(ulid.Make().String())
}

// Open loads configuration, wires the core and opens the group named by
// location.
func Open(ctx context.Context, opts Options) (*Session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sess := &Session{Config: cfg, Store: &state.Store{}}
	fail := func(err error) (*Session, error) {
		for i := len(sess.closers) - 1; i >= 0; i-- {
			_ = sess.closers[i].Close()
		}
		return nil, err
	}

	logger, logFile, err := logging.Open(cfg.Client.LogFile, cfg.Client.LogLevel, "mochiyoru")
	if err != nil {
		return fail(fmt.Errorf("open log: %w", err))
	}
	sess.Logger = logger
	sess.closers = append(sess.closers, logFile)

	origin := NewOrigin()
	client, err := gateway.NewClient(cfg.Client.APIURL,
		gateway.WithTimeout(cfg.Client.RequestTimeout),
		gateway.WithReadRetries(cfg.Client.ReadRetries, cfg.Client.RetryBackoff),
		gateway.WithOrigin(origin),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return fail(fmt.Errorf("init gateway client: %w", err))
	}

	store, err := cache.Open(ctx, cache.Options{
		Kind:      cfg.Client.Cache,
		Path:      cfg.Client.CachePath,
		RedisURL:  cfg.Client.RedisURL,
		Namespace: "default",
	})
	if err != nil {
		return fail(fmt.Errorf("open cache: %w", err))
	}
	sess.closers = append(sess.closers, store)

	src, err := identity.ParseLocation(opts.Location)
	if err != nil {
		return fail(err)
	}

	sess.Address = identity.NewAddress(cfg.Client.ShareRoot())
	sess.Board = board.New(board.Options{
		Context:  ctx,
		Store:    client,
		Cache:    store,
		Locator:  sess.Address,
		Logger:   logger,
		Debounce: cfg.Client.Debounce,
		Dialer:   live.NewWebsocketDialer(0, origin),
		FeedURL:  client.FeedURL,
		Origin:   origin,
		Grace: live.Grace{
			Insert: cfg.Client.InsertEchoGrace,
			Update: cfg.Client.UpdateEchoGrace,
			Delete: cfg.Client.DeleteEchoGrace,
		},
	})
	sess.Board.OnStateChanged(func() {
		sess.Store.SetBoard(sess.Board.Snapshot(false))
	})
	sess.Board.OnSyncError(func(err error) {
		sess.Store.Notify(state.LevelError, "%v", err)
	})

	if err := sess.Board.Open(ctx, src); err != nil {
		return fail(err)
	}
	st := sess.Board.Snapshot(false)
	sess.Store.SetBoard(st)
	if st.Group.Placeholder {
		sess.Store.Notify(state.LevelWarn, "storage unreachable; group %s kept locally", st.Group.ID)
	}
	logger.Info("client started", "api", cfg.Client.APIURL, "origin", origin, "cache", cfg.Client.Cache)
	return sess, nil
}

// Run boots the client until the UI exits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sess, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			sess.Logger.Warn("shutdown", "err", err)
		}
	}()

	if opts.ShareOnly {
		url := sess.ShareURL()
		if url == "" {
			return fmt.Errorf("group %s is not confirmed by the store yet", sess.Board.Group().ID)
		}
		if opts.Out != nil {
			fmt.Fprintln(opts.Out, url)
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := sess.Board.Listen(runCtx); err != nil {
			sess.Logger.Error("change feed stopped", "err", err)
		}
	}()

	interval := sess.Config.Client.PollInterval
	if opts.PollEvery > 0 {
		interval = secondsToDuration(opts.PollEvery)
	}
	pollerDone := StartPoller(runCtx, sess.Store, sess.Board, interval, sess.Logger)

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		sess.Logger.Warn("preferences ignored", "err", err)
	}
	uiErr := ui.Run(ui.Options{
		Context:        runCtx,
		Board:          sess.Board,
		Store:          sess.Store,
		ThemeName:      userPrefs.Theme,
		SortByAssignee: userPrefs.SortByAssignee,
		PrefsPath:      opts.PrefsPath,
		ShareURL:       sess.ShareURL,
		LogPath:        sess.Config.Client.LogFile,
		Logger:         sess.Logger,
	})
	cancel()
	<-pollerDone
	return uiErr
}
