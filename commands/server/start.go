package server

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iov-one/weave-escrow/app"
	"github.com/iov-one/weave-escrow/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"
)

// Result is printed for every transaction processed by start.
type Result struct {
	Code uint32 `json:"code"`
	Log  string `json:"log,omitempty"`
	Data string `json:"data,omitempty"`
}

// StartCmd opens the ledger and delivers hex encoded transactions read
// from stdin, one per line, until EOF or a termination signal. A JSON
// Result is printed for each of them.
func StartCmd(v *viper.Viper, open AppGenerator) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Deliver transactions read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := LoadConfig(v)
			if err != nil {
				return err
			}
			logger, err := conf.Logger()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics, err := app.NewMetrics(reg)
			if err != nil {
				return err
			}
			ledger, err := open(conf.DataDir(), metrics, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()
			if ledger.ChainID() == "" {
				return errors.Wrap(errors.ErrState, "ledger not initialized, run init first")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if conf.MetricsAddr != "" {
				srv := serveMetrics(conf.MetricsAddr, reg, logger)
				defer shutdown(srv, logger)
			}

			logger.Info("Starting ledger", "chain_id", ledger.ChainID())
			return Serve(ctx, ledger, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}

// Serve delivers every transaction read from in and writes the results to
// out. It returns when in is exhausted or ctx is cancelled.
func Serve(ctx context.Context, ledger *app.Ledger, in io.Reader, out io.Writer, logger log.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(in)
		s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- s.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping ledger")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return errors.Wrapf(errors.ErrInput, "read transactions: %s", err)
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := enc.Encode(deliver(ledger, line)); err != nil {
				return errors.Wrapf(errors.ErrInput, "write result: %s", err)
			}
		}
	}
}

func deliver(ledger *app.Ledger, line string) Result {
	raw, err := hex.DecodeString(line)
	if err != nil {
		err = errors.Wrapf(errors.ErrInput, "hex: %s", err)
		code, msg := errors.Info(err, false)
		return Result{Code: code, Log: msg}
	}
	res, err := ledger.DeliverTx(raw)
	if err != nil {
		code, msg := errors.Info(err, false)
		return Result{Code: code, Log: msg}
	}
	return Result{Log: res.Log, Data: hex.EncodeToString(res.Data)}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "err", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown", "err", err)
	}
}
