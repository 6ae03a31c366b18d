package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	"github.com/sara-star-quant/sevenlayer/pkg/engine"
	"github.com/sara-star-quant/sevenlayer/pkg/instrument"
	"github.com/sara-star-quant/sevenlayer/pkg/keyagree"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

// keyEnv names the environment variable holding a hex master key.
const keyEnv = "SEVENLAYER_KEY"

var errUsage = errors.New("invalid usage")

// getenv is replaced in tests.
var getenv = os.Getenv

func newFlagSet(name, usage string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "USAGE: sevenlayer %s [options]\n\n%s\n\nOPTIONS:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return flag.ErrHelp
		}
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

// obsFlags configures logging and tracing.
type obsFlags struct {
	logLevel  string
	logFormat string
	tracing   string
}

func (o *obsFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error, silent")
	fs.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&o.tracing, "tracing", "none", "Tracing mode: none, simple, otel (requires -tags otel)")
}

func (o *obsFlags) setup(stderr io.Writer) (*metrics.Logger, metrics.Tracer, error) {
	level, err := metrics.ParseLevel(o.logLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := metrics.ParseFormat(o.logFormat)
	if err != nil {
		return nil, nil, err
	}
	logger := metrics.NewLogger(
		metrics.WithOutput(stderr),
		metrics.WithLevel(level),
		metrics.WithFormat(format),
		metrics.WithFields(metrics.Fields{"app": "sevenlayer"}),
	)
	metrics.SetLogger(logger)

	var tracer metrics.Tracer
	switch strings.ToLower(o.tracing) {
	case "none":
		tracer = metrics.NoOpTracer{}
	case "simple":
		tracer = metrics.NewSimpleTracer()
	case "otel":
		if !metrics.OTelEnabled() {
			return nil, nil, fmt.Errorf("otel tracing not enabled (build with -tags otel)")
		}
		tracer = metrics.NewOTelTracer("sevenlayer")
	default:
		return nil, nil, fmt.Errorf("invalid tracing mode: %s (use none, simple, or otel)", o.tracing)
	}
	metrics.SetTracer(tracer)
	return logger, tracer, nil
}

// engineOptions wires the logger and tracer into an engine. At debug level
// per-layer events are logged too, without buffer previews.
func engineOptions(logger *metrics.Logger, tracer metrics.Tracer) []engine.Option {
	opts := []engine.Option{engine.WithLogger(logger), engine.WithTracer(tracer)}
	if logger.Enabled(metrics.LevelDebug) {
		opts = append(opts, engine.WithHook(instrument.NewLoggerHook(logger)))
	}
	return opts
}

// logSpans reports spans held by a SimpleTracer at debug level.
func logSpans(logger *metrics.Logger, tracer metrics.Tracer) {
	st, ok := tracer.(*metrics.SimpleTracer)
	if !ok {
		return
	}
	for _, s := range st.Spans() {
		logger.Debug("span", metrics.Fields{
			"name":        s.Name,
			"duration_us": s.Duration.Microseconds(),
			"trace_id":    s.TraceID,
			"parent_id":   s.ParentID,
		})
	}
}

// keyFlags selects the master key source.
type keyFlags struct {
	key          string
	keyFile      string
	password     string
	participants string
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.key, "key", "", "Master key as 128 hex characters")
	fs.StringVar(&k.keyFile, "key-file", "", "File holding the master key (hex or 64 raw bytes)")
	fs.StringVar(&k.password, "password", "", "Derive the master key from a password")
	fs.StringVar(&k.participants, "participants", "", "Derive the master key from two participant ids, e.g. alice,bob")
}

func (k *keyFlags) resolve() ([]byte, error) {
	switch {
	case k.key != "":
		return decodeHexKey(k.key, "-key")
	case k.keyFile != "":
		data, err := os.ReadFile(k.keyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		if key, err := decodeHexKey(string(data), k.keyFile); err == nil {
			return key, nil
		}
		if len(data) == constants.MasterKeySize {
			return data, nil
		}
		return nil, fmt.Errorf("%s: expected %d hex-encoded or raw bytes", k.keyFile, constants.MasterKeySize)
	case k.password != "":
		return keyagree.FromPassword([]byte(k.password))
	case k.participants != "":
		ids := strings.Split(k.participants, ",")
		if len(ids) != 2 {
			return nil, fmt.Errorf("-participants needs exactly two ids, got %d", len(ids))
		}
		return keyagree.FromParticipants(strings.TrimSpace(ids[0]), strings.TrimSpace(ids[1]))
	}

	if env := getenv(keyEnv); env != "" {
		return decodeHexKey(env, keyEnv)
	}
	return nil, fmt.Errorf("no master key: use -key, -key-file, -password, -participants or %s", keyEnv)
}

func decodeHexKey(s, source string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid hex", source)
	}
	if len(key) != constants.MasterKeySize {
		return nil, fmt.Errorf("%s: master key must be %d bytes, got %d", source, constants.MasterKeySize, len(key))
	}
	return key, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, stdout io.Writer, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
