package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"lautenbacher.net/sramboard/config"
	"lautenbacher.net/sramboard/logging"
	"lautenbacher.net/sramboard/platform"
	"lautenbacher.net/sramboard/report"
)

var (
	configFile string
	realHW     bool
)

var rootCmd = &cobra.Command{
	Use:   "sramboard",
	Short: "Bring-up harness for a 23LC1024 SRAM board",
	Long: `Exercises a 23LC1024 serial SRAM through a bit-banged SPI bus and
shows what happens on a 16x2 character LCD.

Without --real the board is simulated in the terminal: the SRAM answers
on simulated GPIO lines and the LCD is drawn as text.

Examples:
  sramboard bitbang                       # write/read-back test in the simulation
  sramboard bitbang --real --cycles 1000  # 1000 cycles on the real board
  sramboard manual -c lab.yml             # clock the SRAM by hand with the buttons`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.CONFILE, "config file")
	rootCmd.PersistentFlags().BoolVarP(&realHW, "real", "r", false, "run on the Raspberry Pi instead of the terminal simulation")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// job is one experiment on a started platform. It returns nil when ctx
// is cancelled.
type job func(ctx context.Context, conf *config.Config, p platform.Platform, rep report.Reporter) error

// serve runs j until it ends or the process is interrupted. SIGHUP, the
// reload key of the simulation and edits of the config file restart j
// with the new configuration.
func serve(j job) error {
	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ossignal)

	for {
		reload, err := runOnce(j, ossignal)
		if err != nil || !reload {
			return err
		}
	}
}

func runOnce(j job, ossignal chan os.Signal) (bool, error) {
	conf, err := config.ReadConfig(configFile, realHW)
	if err != nil {
		return false, err
	}
	logConf := conf.Logging.TUI
	if realHW {
		logConf = conf.Logging.HW
	}
	if err := logging.Init(!realHW, logConf); err != nil {
		return false, fmt.Errorf("failed to init logging: %w", err)
	}
	defer logging.Close()
	mqtt.ERROR = log.New(logging.Writer(), "[mqtt] ", 0)
	mqtt.CRITICAL = log.New(logging.Writer(), "[mqtt] ", 0)

	var p platform.Platform
	if realHW {
		p = platform.NewRaspberryPiPlatform(conf)
	} else {
		p = platform.NewTUIPlatform(conf, ossignal)
	}
	if err := p.Start(); err != nil {
		p.Stop()
		return false, err
	}
	defer p.Stop()
	select {
	case <-p.Ready():
	case sig := <-ossignal:
		return sig == syscall.SIGHUP, nil
	}
	slog.Info("Platform ready", "config", conf.Configfile, "realHW", realHW)

	rep := report.New(conf.Report.MQTT)
	defer rep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	go func() {
		err := config.Watch(ctx, configFile, realHW, func(*config.Config) {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if err != nil {
			slog.Warn("Not watching config file", "error", err)
		}
	}()

	if conf.Web.Listen != "" {
		stop := startWeb(conf.Web.Listen, configFile)
		defer stop()
	}

	done := make(chan error, 1)
	go func() { done <- j(ctx, conf, p, rep) }()

	finish := func(reload bool) (bool, error) {
		cancel()
		err := <-done
		if reload {
			slog.Info("Reloading configuration", "file", configFile)
		}
		return reload, err
	}

	select {
	case err := <-done:
		if realHW {
			return false, err
		}
		// Keep the simulated LCD on screen until the user quits.
		if err != nil {
			slog.Error("Experiment stopped", "error", err)
		} else {
			slog.Info("Experiment finished")
		}
		select {
		case sig := <-ossignal:
			return sig == syscall.SIGHUP, err
		case <-changed:
			return true, nil
		}
	case sig := <-ossignal:
		return finish(sig == syscall.SIGHUP)
	case <-changed:
		return finish(true)
	}
}

// startWeb serves the runtime config API on addr. The returned func
// shuts the server down.
func startWeb(addr, cfile string) func() {
	mux := http.NewServeMux()
	mux.Handle("/api/config", config.ConfigHandler(cfile))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("Serving config API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Config API failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Config API shutdown", "error", err)
		}
	}
}
