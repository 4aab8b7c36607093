package serve_lsp

import (
	"context"
	"os"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/walteh/tokenhints/pkg/debug"
	"github.com/walteh/tokenhints/pkg/lsp"
)

type Handler struct {
	debug      bool
	configFile string
	traceFile  string
	version    string
}

func NewServeLSPCommand(version string) *cobra.Command {
	me := &Handler{version: version}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdin and stdout",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configFile, "config", "", "config file (default is .tokenhints.yaml in the workspace root)")
	cmd.Flags().StringVar(&me.traceFile, "trace-file", "", "write engine traces to this file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context())
	}

	return cmd
}

type RPCLogger struct{}

func (me *RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Debug().Str("rpc_params", req.ParamString()).Str("rpc_id", req.ID()).Str("rpc_method", req.Method()).Msg("client request")
}

func (me *RPCLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	zerolog.Ctx(ctx).Debug().Str("rpc_result", res.ResultString()).Str("rpc_id", res.ID()).Msg("server response")
}

func (me *Handler) Run(ctx context.Context) error {
	// stdout carries the protocol, so logs go to stderr until a client is attached
	logger := debug.NewJSONLogger(os.Stderr, debug.Level(me.debug))
	ctx = logger.WithContext(ctx)

	if me.traceFile != "" {
		shutdown, err := installTracer(me.traceFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("flushing traces")
			}
		}()
	}

	server := lsp.NewServer(ctx, lsp.WithConfigFile(me.configFile), lsp.WithVersion(me.version))

	instance := server.BuildServerInstance(ctx, &jrpc2.ServerOptions{
		RPCLog: &RPCLogger{},
	})

	if err := instance.StartAndWait(os.Stdin, os.Stdout); err != nil {
		return errors.Errorf("error running language server: %w", err)
	}

	return nil
}

func installTracer(file string) (func(context.Context) error, error) {
	f, err := os.Create(file)
	if err != nil {
		return nil, errors.Errorf("creating trace file: %w", err)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, errors.Errorf("creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		defer f.Close()
		return tp.Shutdown(ctx)
	}, nil
}
