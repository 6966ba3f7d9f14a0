// Command examplefcgi is a minimal FastCGI responder demonstrating the
// fastcgi package: it echoes the request method, path and query string
// back as an HTML page.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"

	"github.com/mapscape/gofastcgi"
	"github.com/mapscape/gofastcgi/fastcgilog"
	"github.com/mapscape/gofastcgi/internal/session"
	"github.com/mapscape/gofastcgi/internal/textenc"
)

// visits is a process-wide session store mapping a browser's cookie to
// a hit count, demonstrating internal/session wired into a real
// handler rather than left to its own tests.
var visits = session.New[int](30*time.Minute, 5*time.Minute, timeutil.RealClock())

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "examplefcgi",
		Short: "Run the example FastCGI responder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	fastcgilog.SetDebug(cfg.Debug)

	opts := []fastcgi.Option{fastcgi.WithHandlerFactory(echoHandlerFactory)}
	switch {
	case cfg.ListenUnixPath != "":
		opts = append(opts, fastcgi.WithUnixSocket(cfg.ListenUnixPath, 0o660, -1, -1))
	case cfg.ListenTCPAddr != "":
		opts = append(opts, fastcgi.WithTCP(cfg.ListenTCPAddr))
	default:
		opts = append(opts, fastcgi.WithInheritedFD(0))
	}
	if cfg.Workers > 0 {
		opts = append(opts, fastcgi.WithWorkers(cfg.Workers))
	}
	if cfg.MaxPostSize > 0 {
		opts = append(opts, fastcgi.WithMaxPostSize(cfg.MaxPostSize))
	}

	mgr, err := fastcgi.NewManager(fastcgi.NewConfig(opts...), timeutil.RealClock())
	if err != nil {
		return fmt.Errorf("starting manager: %w", err)
	}

	mgr.Start()
	fastcgilog.L().Infow("examplefcgi: serving")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fastcgilog.L().Infow("examplefcgi: shutting down")
	mgr.Stop()
	mgr.Join()
	fastcgilog.Sync()
	return nil
}

// echoHandler writes a small HTML page describing the request.
type echoHandler struct {
	keepAlive bool
}

func echoHandlerFactory(id fastcgi.RequestId, role fastcgi.Role, keepAlive bool) fastcgi.Handler {
	return &echoHandler{keepAlive: keepAlive}
}

func (h *echoHandler) Respond(ctx context.Context, r *Request) (bool, error) {
	return respond(r)
}

// Request is a local alias so this file reads naturally; it is exactly
// fastcgi.Request.
type Request = fastcgi.Request

func respond(r *Request) (bool, error) {
	visits.Cleanup()

	var sid session.ID
	var count int
	if raw, ok := r.Env.Cookies.Get("examplefcgi_sid"); ok {
		if id, err := session.ParseID(raw); err == nil {
			if n, ok := visits.Get(id); ok {
				sid, count = id, n+1
				visits.Set(id, count)
			}
		}
	}

	var setCookie string
	if count == 0 {
		id, err := visits.Create(1)
		if err != nil {
			return false, fmt.Errorf("creating session: %w", err)
		}
		sid, count = id, 1
		setCookie = fmt.Sprintf("Set-Cookie: examplefcgi_sid=%s; Path=/; HttpOnly\r\n", sid)
	}

	r.Out.WriteRaw([]byte("Content-Type: text/html; charset=utf-8\r\n" + setCookie + "\r\n"))
	r.Out.SetMode(textenc.ModeHTML)
	fmt.Fprintf(r.Out, "<html><body><h1>%s %s</h1><p>visit #%d</p>", r.Env.Method, r.Env.RequestURI, count)
	for _, key := range r.Env.Gets.Keys() {
		v, _ := r.Env.Gets.Get(key)
		fmt.Fprintf(r.Out, "<p>%s = %s</p>", key, v)
	}
	r.Out.Write([]byte("</body></html>"))
	r.Out.SetMode(textenc.ModeNone)
	return true, nil
}
