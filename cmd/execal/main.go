// Command execal drives the document-analysis backend from the terminal:
// register, log in, upload a document and fetch or save its report.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"execal-client/internal/authsession"
	"execal-client/internal/bootstrap"
	"execal-client/internal/execal"
	"execal-client/internal/shared/config"
	"execal-client/internal/shared/storage/db"
	"execal-client/internal/shared/telemetry"
)

func main() {
	root, c := newRootCmd(os.Stderr)
	if err := execute(root, c); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", describeError(err))
		os.Exit(1)
	}
}

// execute runs the command tree and then releases whatever setup built,
// including when the command itself failed.
func execute(root *cobra.Command, c *cli) error {
	err := root.Execute()
	if cerr := c.close(); cerr != nil {
		telemetry.Warn("cli.close_failed", map[string]any{"error": cerr})
		if err == nil {
			err = cerr
		}
	}
	return err
}

// cli carries the global flags and the dependencies built from them.
type cli struct {
	configPath string
	apiBase    string
	token      string
	logLevel   string

	logOut  io.Writer
	app     *bootstrap.App
	session authsession.Session
}

func newRootCmd(logOut io.Writer) (*cobra.Command, *cli) {
	c := &cli{logOut: logOut}

	cmd := &cobra.Command{
		Use:           "execal",
		Short:         "Client for the lab analysis backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML config file (default $EXECAL_CONFIG)")
	flags.StringVar(&c.apiBase, "api-base", "", "backend base URL (default $EXECAL_API_BASE)")
	flags.StringVar(&c.token, "token", "", "bearer token (default $EXECAL_TOKEN)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		c.pingCmd(),
		c.registerCmd(),
		c.loginCmd(),
		c.uploadCmd(),
		c.reportCmd(),
		c.pdfCmd(),
		c.historyCmd(),
		c.testsCmd(),
		c.consultCmd(),
		c.ledgerCmd(),
	)
	return cmd, c
}

func (c *cli) setup(cmd *cobra.Command) error {
	path := c.configPath
	if path == "" {
		path = os.Getenv("EXECAL_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if c.apiBase != "" {
		cfg.APIBase = strings.TrimRight(c.apiBase, "/")
	}
	if c.token != "" {
		cfg.Token = c.token
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	// stdout is reserved for command results.
	telemetry.SetOutput(c.logOut)
	telemetry.SetLevel(telemetry.ParseLevel(cfg.LogLevel))

	app, err := bootstrap.Build(cmd.Context(), cfg, db.ProfileCLI)
	if err != nil {
		return err
	}
	c.app = app
	c.session = authsession.Session{Token: cfg.Token}
	telemetry.Debug("cli.ready", map[string]any{
		"command":  cmd.CommandPath(),
		"api_base": cfg.APIBase,
		"store":    cfg.ObjectStoreType,
		"ledger":   ledgerKind(app),
		"token":    authsession.Describe(c.session.Token),
	})
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func ledgerKind(app *bootstrap.App) string {
	if app.DB == nil {
		return "memory"
	}
	return "postgres"
}

// describeError adds the backend's detail message to API errors.
func describeError(err error) string {
	apiErr, ok := execal.AsAPIError(err)
	if !ok {
		return err.Error()
	}
	if detail := detailOf(apiErr.Body); detail != "" {
		return fmt.Sprintf("%s failed with status %d: %s", apiErr.Op, apiErr.Status, detail)
	}
	return err.Error()
}
