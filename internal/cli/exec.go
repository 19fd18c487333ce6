package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlscript/internal/config"
	"github.com/roach88/sqlscript/internal/executor"
	"github.com/roach88/sqlscript/internal/script"
	"github.com/roach88/sqlscript/internal/value"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	DB         string
	Engine     string
	Strict     bool
	Statements []string
	Params     []string
	JSON       string
	Table      bool
	ChildName  string
	AllowEmpty bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec [script-file...]",
		Short: "Execute a script once",
		Long: `Execute a script in a single transaction and print the response.

The script is made of the given files ("-" reads stdin) followed by every
--statement. Placeholders ${name} are filled from --param and --params.

Without --db the database of the configuration file is used.

Examples:
  sqlscript exec --db app.sqlite -e "select count(*) as total from alerts"
  sqlscript exec --db app.sqlite --param id=3 delete.sql
  sqlscript exec --db "postgres://localhost/app" --engine generic --table report.sql`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "connection string")
	cmd.Flags().StringVar(&opts.Engine, "engine", "", "engine adapter (embedded|generic)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "serialize all embedded database work")
	cmd.Flags().StringArrayVarP(&opts.Statements, "statement", "e", nil, "script text (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.JSON, "params", "", "parameters as a JSON object")
	cmd.Flags().BoolVar(&opts.Table, "table", false, "print the report of the last statement returning rows")
	cmd.Flags().StringVar(&opts.ChildName, "child-name", "", "key a multi-row report is stored under")
	cmd.Flags().BoolVar(&opts.AllowEmpty, "allow-empty", false, "accept a script without statements")

	return cmd
}

func runExec(cmd *cobra.Command, opts *ExecOptions, args []string) error {
	formatter := opts.formatter(cmd.OutOrStdout())

	conn, engineName, strict, err := opts.database()
	if err != nil {
		return err
	}

	blocks := make([]string, 0, len(args)+len(opts.Statements))
	for _, path := range args {
		text, err := readScript(cmd.InOrStdin(), path)
		if err != nil {
			return WrapExitError(ExitCommandError, "read script", err)
		}
		blocks = append(blocks, text)
	}
	blocks = append(blocks, opts.Statements...)
	if len(blocks) == 0 {
		return NewExitError(ExitCommandError, "no script given: pass a file or --statement")
	}

	request, err := parseParams(opts.JSON, opts.Params)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid parameters", err)
	}

	sopts := []script.Option{script.WithAllowEmpty(opts.AllowEmpty)}
	if opts.ChildName != "" {
		sopts = append(sopts, script.WithChildName(opts.ChildName))
	}
	sc, err := script.New(conn, blocks, sopts...)
	if err != nil {
		_ = formatter.Fail(err)
		return WrapExitError(ExitFailure, "invalid script", err)
	}

	logger := opts.Logger()
	adapter, err := NewRegistry(strict, logger).Get(engineName)
	if err != nil {
		return WrapExitError(ExitCommandError, "select engine", err)
	}
	exec := executor.New(adapter, executor.WithLogger(logger))

	var result any
	if opts.Table {
		report, err := exec.ExecTable(cmd.Context(), sc, request)
		if err != nil {
			_ = formatter.Fail(err)
			return WrapExitError(ExitFailure, "execute script", err)
		}
		result = report
	} else {
		response := value.NewObject()
		if err := exec.Exec(cmd.Context(), sc, request, response); err != nil {
			_ = formatter.Fail(err)
			return WrapExitError(ExitFailure, "execute script", err)
		}
		result = response
	}

	return formatter.Success(result)
}

// database resolves the connection, engine and strictness from the flags,
// falling back to the configuration file.
func (opts *ExecOptions) database() (conn, engineName string, strict bool, err error) {
	conn, engineName, strict = opts.DB, opts.Engine, opts.Strict
	if conn == "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", "", false, NewExitError(ExitCommandError, "--db is required without a configuration file")
			}
			return "", "", false, WrapExitError(ExitCommandError, "load configuration", err)
		}
		conn = cfg.Database.Connection
		strict = strict || cfg.Database.Strict
		if engineName == "" {
			engineName = cfg.Database.Engine
		}
	}
	if engineName == "" {
		engineName = config.DefaultEngine
	}
	return conn, engineName, strict, nil
}

func readScript(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// parseParams builds the request object: the JSON object first, then every
// name=value pair, later pairs replacing earlier ones.
func parseParams(jsonText string, pairs []string) (*value.Object, error) {
	request := value.NewObject()
	if strings.TrimSpace(jsonText) != "" {
		obj, err := value.ParseJSON([]byte(jsonText))
		if err != nil {
			return nil, err
		}
		request = obj
	}
	for _, pair := range pairs {
		name, val, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", pair)
		}
		request.Set(name, value.String(val))
	}
	return request, nil
}
