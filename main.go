// Starts an http server that fetches social network activity, normalizes it
// and serves it as JSON, Atom, RSS or microformats2.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/sarajaksa/granary/server"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/source/ao3"
	"github.com/sarajaksa/granary/server/source/bluesky"
	"github.com/sarajaksa/granary/server/source/facebook"
	"github.com/sarajaksa/granary/server/source/instagram"
	"github.com/sarajaksa/granary/server/source/meetup"
	"github.com/sarajaksa/granary/server/source/pixelfed"
	"github.com/sarajaksa/granary/server/source/reddit"
	"github.com/sarajaksa/granary/server/telemetry"
)

func readConfig(filename string) server.Config {
	var cfg server.Config
	b, err := os.ReadFile(filename)
	if err != nil {
		telemetry.Error(err, "opening config [%s]", filename)
	} else {
		c, err := server.ReadConfig(b)
		if err != nil {
			telemetry.Error(err, "parsing config [%s]", filename)
		}
		cfg = c
	}

	return cfg
}

func newRegistry(cfg server.Config) *source.Registry {
	pixelfedInstance := cfg.Sources["pixelfed"].BaseURL
	if pixelfedInstance == "" {
		pixelfedInstance = "https://pixelfed.social"
	}
	return source.NewRegistry(
		ao3.New(),
		bluesky.New(),
		facebook.New(),
		instagram.New(),
		meetup.New(),
		pixelfed.New(pixelfedInstance),
		reddit.New(),
	)
}

func main() {
	configFile := flag.String("config", "config.json", "config json file")
	host := flag.String("host", "", "this hostname")
	pubCert := flag.String("cert", "", "public certificate")
	privCert := flag.String("key", "", "private key")
	port := flag.Int("port", 0, "listen port")

	flag.Parse()

	telemetry.Log("starting granary")

	cfg := readConfig(*configFile)
	if *host != "" {
		cfg.Server.HostName = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *pubCert != "" {
		cfg.Server.Certificate = *pubCert
	}
	if *privCert != "" {
		cfg.Server.PrivateKey = *privCert
	}

	svc := server.NewService(cfg, newRegistry(cfg))

	go func() {
		if err := svc.ListenAndServe(); err != nil {
			telemetry.Error(err, "listener stopped")
		}
	}()

	// Wait for ^C
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	<-c
	telemetry.Log("stopping granary")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
	defer cancel()
	if err := svc.Server.Shutdown(ctx); err != nil {
		telemetry.Error(err, "shutting down listener")
	}
	svc.Close()
	telemetry.Log("stopped granary cleanly")
}
