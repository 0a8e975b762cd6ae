package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/wishboard/pkg/config"
	"github.com/astromechza/wishboard/pkg/relay"
	"github.com/astromechza/wishboard/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.ParseRelay(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	slog.Info("Opening database", "path", cfg.Database)
	db, err := sql.Open("sqlite3", cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := relay.OpenStore(ctx, db, cfg.BoardID)
	if err != nil {
		return err
	}
	srv, err := relay.NewServer(store, relay.Options{UploadDir: cfg.UploadDir, MaxPhotoBytes: cfg.MaxPhotoBytes})
	if err != nil {
		return err
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(cfg.BackupInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if _, err := store.Backup(ctx); err != nil {
					slog.Error("failed to backup board", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Routes()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	srv.Close()
	_ = httpServer.Close()

	wg.Wait()

	if _, err := store.Backup(context.Background()); err != nil {
		slog.Error("failed final backup", "err", err)
	}
	dump(cfg.BoardID, store)
	return nil
}

// dump leaves a copy of the board document and its history graph in the temp
// dir for inspection with wishctl.
func dump(boardID string, store *relay.Store) {
	tf := filepath.Join(os.TempDir(), "wishboard-"+boardID+".automerge")
	if err := os.WriteFile(tf, store.Save(), 0o644); err != nil {
		slog.Error("failed to dump", "board", boardID, "err", err)
		return
	}
	slog.Info("dumped", "board", boardID, "path", tf)

	doc, err := store.Fork()
	if err != nil {
		slog.Error("failed to fork", "board", boardID, "err", err)
		return
	}
	if svgPath, err := viz.RenderToTemp(doc, relay.Describe); err != nil {
		slog.Error("failed to render", "board", boardID, "err", err)
	} else {
		slog.Info("rendered", "board", boardID, "path", "file://"+svgPath)
	}
}
