package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/specialistvlad/nodegrid/internal/app"
)

// EnvPrefix prefixes the environment variables that provide flag defaults.
const EnvPrefix = "NODEGRID_"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// env resolves flag defaults from the process environment first and the
// dotenv file second.
type env struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

func (e env) get(name string) (string, bool) {
	if v, ok := e.lookup(EnvPrefix + name); ok {
		return v, true
	}
	v, ok := e.file[EnvPrefix+name]
	return v, ok
}

func (e env) lookupString(name, def string) string {
	if v, ok := e.get(name); ok {
		return v
	}
	return def
}

func (e env) lookupInt(name string, def int) (int, error) {
	v, ok := e.get(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return n, nil
}

func (e env) lookupDuration(name string, def time.Duration) (time.Duration, error) {
	v, ok := e.get(name)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return d, nil
}

// envFile returns the dotenv path named by the -env-file flag, scanning args
// before the flag set is built so the file can provide defaults.
func envFile(args []string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(a, "env-file="); ok {
			return v
		}
		if a == "env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

func readEnv(args []string) (env, error) {
	e := env{lookup: os.LookupEnv}
	path := envFile(args)
	file, err := godotenv.Read(path)
	switch {
	case err == nil:
		e.file = file
		slog.Debug("Loaded dotenv file.", "path", path, "count", len(file))
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("No dotenv file found.", "path", path)
	default:
		return e, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e, nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	return parse(args, output, nil)
}

func parse(args []string, output io.Writer, lookup func(string) (string, bool)) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	e, err := readEnv(args)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if lookup != nil {
		e.lookup = lookup
	}

	workers, err := e.lookupInt("WORKERS", 0)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	rateLimit, err := e.lookupInt("RATE_LIMIT", 0)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	rateWindow, err := e.lookupDuration("RATE_WINDOW", time.Second)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	resultTTL, err := e.lookupDuration("RESULT_TTL", 0)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	timeout, err := e.lookupDuration("EXECUTE_TIMEOUT", 0)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	flagSet := flag.NewFlagSet("nodegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
nodegrid - A node-graph workflow engine.

Usage:
  nodegrid [options] [BLUEPRINT_PATH]

Arguments:
  BLUEPRINT_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Every option may also be set through a NODEGRID_ environment variable,
for example NODEGRID_LOG_LEVEL=debug, or through a .env file.

Options:
`)
		flagSet.PrintDefaults()
	}

	fileFlag := flagSet.String("file", "", "Path to the blueprint file or directory.")
	fFlag := flagSet.String("f", "", "Path to the blueprint file or directory (shorthand).")
	idFlag := flagSet.String("blueprint", "", "Blueprint to run when the path defines several.")
	inputFlag := flagSet.String("input", "", "Execution input as a JSON object.")
	listenFlag := flagSet.String("listen", e.lookupString("LISTEN", ""), "Serve the engine over HTTP and WebSocket on this address.")
	stdioFlag := flagSet.Bool("stdio", false, "Serve the engine on standard input and output.")
	logFormatFlag := flagSet.String("log-format", e.lookupString("LOG_FORMAT", "json"), "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", e.lookupString("LOG_LEVEL", "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", workers, "Number of queue workers. 0 selects the number of CPUs.")
	rateLimitFlag := flagSet.Int("rate-limit", rateLimit, "Maximum executions accepted per rate window. 0 is unlimited.")
	rateWindowFlag := flagSet.Duration("rate-window", rateWindow, "Length of the rate limit window.")
	resultTTLFlag := flagSet.Duration("result-ttl", resultTTL, "How long finished results are kept. 0 selects the default.")
	timeoutFlag := flagSet.Duration("timeout", timeout, "Execution timeout. 0 selects the default.")
	flagSet.String("env-file", ".env", "Path to a dotenv file providing NODEGRID_ defaults.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *fileFlag != "" {
		path = *fileFlag
	} else if *fFlag != "" {
		path = *fFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Blueprint path determined.", "path", path)

	mode := app.ModeRun
	switch {
	case *stdioFlag && *listenFlag != "":
		return nil, false, &ExitError{Code: 2, Message: "-stdio and -listen are mutually exclusive"}
	case *stdioFlag:
		mode = app.ModeStdio
	case *listenFlag != "":
		mode = app.ModeServe
	}

	if mode == app.ModeRun && path == "" {
		slog.Debug("No blueprint path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Mode:           mode,
		BlueprintPath:  path,
		BlueprintID:    *idFlag,
		Input:          *inputFlag,
		Listen:         *listenFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		Workers:        *workersFlag,
		RateLimit:      *rateLimitFlag,
		RateWindow:     *rateWindowFlag,
		ResultTTL:      *resultTTLFlag,
		ExecuteTimeout: *timeoutFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
