package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/novalearn/go-portal-client/apiclient"
	"github.com/novalearn/go-portal-client/internal/config"
	"github.com/novalearn/go-portal-client/notifications"
	"github.com/novalearn/go-portal-client/realtime"
	"github.com/novalearn/go-portal-client/session"
	"github.com/novalearn/go-portal-client/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running portal client: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Portal client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := newLogger(c)

	store, err := token.NewFileStore(c.GetDataFolder())
	if err != nil {
		return fmt.Errorf("token.NewFileStore: %w", err)
	}

	api := apiclient.New(c.GetAPIBaseURL(),
		apiclient.WithTimeout(c.GetHTTPTimeout()),
		apiclient.WithClientLogger(logger))

	sessions, err := session.New(store, api, session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("session.New: %w", err)
	}

	gate, err := apiclient.NewGate(api, sessions, apiclient.WithGateLogger(logger))
	if err != nil {
		return fmt.Errorf("apiclient.NewGate: %w", err)
	}

	channel, err := realtime.NewChannel(c.GetRealtimeURL(), sessions,
		realtime.WithReconnectDelay(c.GetReconnectDelay()),
		realtime.WithHandshakeTimeout(c.GetHandshakeTimeout()),
		realtime.WithChannelLogger(logger))
	if err != nil {
		return fmt.Errorf("realtime.NewChannel: %w", err)
	}
	sessions.OnLogout(func() {
		_ = channel.Close()
	})

	notificationAPI, err := notifications.NewAPI(gate)
	if err != nil {
		return fmt.Errorf("notifications.NewAPI: %w", err)
	}
	center, err := notifications.NewCenter(notificationAPI, channel,
		notifications.WithCenterLogger(logger))
	if err != nil {
		return fmt.Errorf("notifications.NewCenter: %w", err)
	}

	ctx := context.Background()
	sessions.Bootstrap(ctx)
	if !sessions.IsAuthenticated() {
		identifier := os.Getenv("PORTAL_IDENTIFIER")
		secret := os.Getenv("PORTAL_SECRET")
		if identifier == "" || secret == "" {
			return errors.New("no persisted session and no PORTAL_IDENTIFIER/PORTAL_SECRET provided")
		}
		if _, err := sessions.Login(ctx, identifier, secret, true); err != nil {
			return fmt.Errorf("sessions.Login: %w", err)
		}
	}

	if err := channel.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial realtime connect failed, retrying in background")
	}
	if err := center.Bootstrap(ctx); err != nil {
		logger.Warn().Err(err).Msg("notification bootstrap failed")
	} else {
		logger.Info().Int("unread", center.Unread()).Msg("notification feed ready")
	}

	waitForStopSignal()
	center.Shutdown()
	return channel.Close()
}

func newLogger(c config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if c.GetEnv() == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
