package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/quaso-pack/internal/logger"
	"github.com/oshokin/quaso-pack/internal/resolver"
	"github.com/oshokin/quaso-pack/internal/stage"
)

const (
	// readHeaderTimeout bounds slow clients of the development server.
	readHeaderTimeout = 5 * time.Second
	// shutdownTimeout bounds the graceful stop of the development server.
	shutdownTimeout = 5 * time.Second
)

// serve exposes the stage over HTTP, and optionally watches for changes,
// until ctx is done or either side fails.
func serve(ctx context.Context, opts *Options, res *resolver.Resolution) error {
	ln, err := net.Listen("tcp", opts.Config.ServeAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", opts.Config.ServeAddress, err)
	}

	srv := &http.Server{
		Handler:           stageHandler(res.Stage),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Serving web build", "url", "http://"+ln.Addr().String()+"/", "dir", res.Stage)

	if opts.Ready != nil {
		opts.Ready(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if opts.Watch {
		g.Go(func() error {
			return watch(gctx, res, func(ctx context.Context) error {
				return locked(ctx, opts.Config.Workspace, func(ctx context.Context) error {
					_, err := stage.Assemble(ctx, res)

					return err
				})
			})
		})
	}

	if err = g.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Server stopped")

	return nil
}

// stageHandler serves the staging directory without client caching.
func stageHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
