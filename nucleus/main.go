// nucleus serves static files, redirects and a few example dynamic routes
// with the nucleus HTTP/1.1 server engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/enfabrica/nucleus/lib/kflags/kcobra"
	"github.com/enfabrica/nucleus/lib/logger/klog"
	"github.com/enfabrica/nucleus/lib/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	root := &cobra.Command{
		Use:           "nucleus",
		Long:          `nucleus - serves static files and example routes over HTTP/1.1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  $ nucleus --root ./public
	To serve the files in ./public on port 7878, for any hostname.

  $ nucleus --config ./sites.toml --http-address :443 --acme-domain example.com --acme-email me@example.com
	To serve the virtual hosts in sites.toml over TLS, with certificates
	from letsencrypt.`,
	}

	flags := DefaultFlags().Register(&kcobra.FlagSet{FlagSet: root.Flags()}, "")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		log, err := klog.New("nucleus", klog.FromFlags(*flags.Log))
		if err != nil {
			return err
		}
		kcobra.LogFlags(cmd, log.Debugf)

		n, err := New(log, flags)
		if err != nil {
			return err
		}
		defer n.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return n.ListenAndServe(ctx, flags.Address)
		})

		if flags.MetricsAddress != "" {
			ms := metrics.NewServer(flags.MetricsAddress, "/metrics")
			group.Go(func() error {
				log.Infof("exporting metrics on %s/metrics", flags.MetricsAddress)
				if err := ms.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-ctx.Done()
				return ms.Shutdown(context.Background())
			})
		}

		err = group.Wait()
		log.Infof("nucleus stopped")
		return err
	}

	kcobra.Run(root, kcobra.WithEnv("nucleus"), kcobra.WithEnvFiles(".env"))
}
