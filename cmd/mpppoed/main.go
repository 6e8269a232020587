/*
mpppoed is a standalone PPPoE phys-layer daemon. It binds each
configured link to a parent Ethernet interface and drives it through
the discovery and session-establishment sequence of RFC 2516, RFC 4638
and RFC 4937: dialing out for links configured without incoming, and
listening for discovery requests on links configured with it.

Usage:

	mpppoed -config /etc/mpppoed.toml
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AxeyGabriel/mpd-ng/config"
	"github.com/AxeyGabriel/mpd-ng/internal/netgraph"
	"github.com/AxeyGabriel/mpd-ng/phys"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// daemonConfig handles the one top-level parameter mpppoed itself
// understands, outside any [link.*] table: log_level.
type daemonConfig struct {
	logLevel string
}

func (c *daemonConfig) ParseParameter(key string, value interface{}) error {
	switch key {
	case "log_level":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("log_level must be a string")
		}
		c.logLevel = s
		return nil
	}
	return fmt.Errorf("unrecognised parameter %q", key)
}

func (c *daemonConfig) filter() level.Option {
	switch c.logLevel {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

type application struct {
	logger log.Logger
	router *phys.Router
	links  []*phys.Link
}

func newApplication(configPath string) (*application, error) {
	dcfg := &daemonConfig{}
	cfg, err := config.LoadFileWithCustomParser(configPath, dcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	baseLogger := level.NewFilter(log.NewLogfmtLogger(os.Stderr), dcfg.filter())
	logger := log.With(baseLogger, "ts", log.DefaultTimestampUTC)

	transport := netgraph.NewRawTransport()
	table := phys.NewParentTable(transport, 0, logger)
	upper := newDaemonUpperLayer(logger)
	router := phys.NewRouter(table, upper, logger)
	upper.setRegistrar(router)

	app := &application{logger: logger, router: router}

	for _, nl := range cfg.Links {
		l := phys.NewLink(router.NextLinkID(), nl.Name, nl.Config, table, upper, logger)
		if nl.Config.Incoming {
			l.MarkTemplate()
		}
		router.AddLink(l)
		app.links = append(app.links, l)
	}

	return app, nil
}

// run starts every configured link in its appropriate role, then drives
// the Router's dispatch loop until a termination signal arrives.
func (a *application) run() int {
	for _, l := range a.links {
		var err error
		if l.Template() {
			err = l.Listen()
		} else {
			err = l.Open()
		}
		if err != nil {
			level.Error(a.logger).Log("msg", "failed to start link", "link", l.Name(), "err", err)
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		level.Info(a.logger).Log("msg", "received signal, shutting down", "signal", s)
		cancel()
	}()

	level.Info(a.logger).Log("msg", "mpppoed starting", "links", len(a.links))
	a.router.Run(ctx)
	level.Info(a.logger).Log("msg", "mpppoed stopped")
	return 0
}

func main() {
	configPath := flag.String("config", "/etc/mpppoed.toml", "path to the mpppoed TOML configuration file")
	flag.Parse()

	app, err := newApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mpppoed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(app.run())
}
