package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/daemon"
	"github.com/matheus3301/parley/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	apiURL, wsURL := config.DefaultAPIURL, config.DefaultWSURL
	if cfg, err := config.Load(session.ConfigPath()); err == nil {
		apiURL, wsURL = cfg.APIURL, cfg.WSURL
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			APIURL:      apiURL,
			WSURL:       wsURL,
		}),
	)

	app.Run()
}
