package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/astromechza/wishboard/pkg/audio"
	"github.com/astromechza/wishboard/pkg/board"
	"github.com/astromechza/wishboard/pkg/bus"
	"github.com/astromechza/wishboard/pkg/config"
	"github.com/astromechza/wishboard/pkg/effects"
	"github.com/astromechza/wishboard/pkg/reconcile"
	"github.com/astromechza/wishboard/pkg/surface"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.ParseDisplay(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	// the terminal belongs to tcell, so logs go to a file
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.LogLevel})))

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to init screen: %w", err)
	}
	defer screen.Fini()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	term := surface.New(screen, surface.LayoutConfig())
	b := board.New(term, board.WithLayout(surface.LayoutConfig()), board.WithRand(rand.New(rand.NewSource(seed))))

	fx := effects.NewDispatcher(term, audio.NewSpeaker(cfg.Volume))
	fx.SetMuted(cfg.Muted)
	term.SetMuted(cfg.Muted)
	defer func() {
		if err := fx.Close(); err != nil {
			slog.Error("failed to close audio", "err", err)
		}
	}()

	messages := make(chan reconcile.Message, reconcile.DefaultBufferSize)
	client, err := bus.NewClient(cfg.Relay, messages, bus.WithRetryDelay(cfg.RetryDelay))
	if err != nil {
		return err
	}
	machine := reconcile.New(b, fx, reconcile.WithRequester(client), reconcile.WithSnapshotTimeout(cfg.SnapshotTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	themeCtx, themeCancel := context.WithTimeout(ctx, 5*time.Second)
	if theme, err := client.FetchTheme(themeCtx); err != nil {
		slog.Warn("failed to fetch theme", "err", err)
	} else {
		b.SetTheme(theme)
	}
	themeCancel()

	busCtx, busCancel := context.WithCancel(ctx)
	busWg := new(sync.WaitGroup)
	busWg.Add(1)
	go func() {
		defer busWg.Done()
		client.Run(busCtx)
	}()

	machineDone := make(chan struct{})
	go func() {
		defer close(machineDone)
		if err := machine.Run(ctx, messages); err != nil {
			slog.Error("reconcile loop failed", "err", err)
		}
	}()

	framesCtx, framesCancel := context.WithCancel(ctx)
	framesDone := make(chan struct{})
	go func() {
		defer close(framesDone)
		b.RunFrames(framesCtx, cfg.FrameInterval)
	}()

	inputCtx, inputCancel := context.WithCancel(ctx)
	defer inputCancel()
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		surface.NewInput(term, surface.Controls{
			Activate:   fx.Activate,
			ToggleMute: fx.ToggleMute,
			Resize:     b.Render,
		}).Run(inputCtx)
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-inputDone:
		slog.Info("quit requested")
	}

	// stop the producer first so the machine sees every emitted message
	busCancel()
	busWg.Wait()
	close(messages)
	<-machineDone
	framesCancel()
	<-framesDone
	inputCancel()
	fx.Wait()
	slog.Info("display stopped", "wishes", b.Len(), "resyncs", machine.Resyncs())
	return nil
}
