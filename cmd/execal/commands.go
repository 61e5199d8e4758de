package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"execal-client/internal/authsession"
	"execal-client/internal/shared/storage/object"
	"execal-client/internal/shared/telemetry"
	"execal-client/internal/shared/util"
	"execal-client/internal/workflow"
)

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.app.Client.Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			if err := c.app.Client.Register(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (default $EXECAL_PASSWORD)")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and print the bearer token",
		Long:  "Log in and print the bearer token. Export it as EXECAL_TOKEN or pass it with --token.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			token, err := c.app.Client.Login(cmd.Context(), args[0], pw)
			if err != nil {
				c.session.Clear()
				return err
			}
			c.session.Token = token
			telemetry.Info("cli.logged_in", map[string]any{"email": args[0], "token": authsession.Describe(token)})
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (default $EXECAL_PASSWORD)")
	return cmd
}

func (c *cli) uploadCmd() *cobra.Command {
	var (
		withPDF  bool
		save     bool
		shareTTL time.Duration
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			token := c.bearer()

			opts := []workflow.Option{}
			if !quiet {
				errOut := cmd.ErrOrStderr()
				opts = append(opts, workflow.WithObserver(func(t workflow.Transition) {
					fmt.Fprintf(errOut, "%s -> %s\n", t.From, t.To)
				}))
			}
			w := c.app.Workflow(opts...)

			ctx := cmd.Context()
			id, err := w.Start(ctx, token, doc)
			if err != nil {
				return withSnapshot(w, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "analysis_id: %d\n", id)
			if snap := w.Snapshot(); snap.Report != nil {
				fmt.Fprintln(out, snap.Report.Body)
			}

			if withPDF {
				if err := w.FetchPDF(ctx, token); err != nil {
					return withSnapshot(w, err)
				}
			}
			if !save && shareTTL <= 0 {
				return nil
			}
			key, err := w.Save(ctx, c.app.Store)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved: %s\n", key)
			if shareTTL > 0 {
				return c.share(ctx, out, key, shareTTL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withPDF, "pdf", false, "also download the rendered PDF")
	cmd.Flags().BoolVar(&save, "save", false, "save the PDF (or the report) to the object store")
	cmd.Flags().DurationVar(&shareTTL, "share", 0, "save and print a download link valid for this long")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print state transitions")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <analysis-id>",
		Short: "Print the report of an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			report, err := c.app.Client.GetReport(cmd.Context(), c.bearer(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Body)
			return nil
		},
	}
}

func (c *cli) pdfCmd() *cobra.Command {
	var (
		outPath string
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "pdf <analysis-id>",
		Short: "Download the rendered report PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if outPath == "" && !save {
				return errors.New("pass --out or --save")
			}
			ctx := cmd.Context()
			pdf, err := c.app.Client.GetReportPDF(ctx, c.bearer(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outPath != "" {
				if err := os.WriteFile(outPath, pdf.Bytes, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				fmt.Fprintf(out, "wrote %s (%d bytes)\n", outPath, len(pdf.Bytes))
			}
			if save {
				key := object.ReportKey(c.app.Config.Owner, id, "pdf")
				if _, err := c.app.Store.Save(ctx, key, "application/pdf", bytes.NewReader(pdf.Bytes)); err != nil {
					return fmt.Errorf("save %s: %w", key, err)
				}
				fmt.Fprintf(out, "saved: %s\n", key)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the PDF to this file")
	cmd.Flags().BoolVar(&save, "save", false, "save the PDF to the object store")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.app.Client.History(cmd.Context(), c.bearer())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tSTATUS\tSOURCE\tFORMAT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Status, e.Source, e.Format)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) testsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "List the lab tests with reference ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tests, err := c.app.Client.ReferenceTests(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TEST\tMIN\tMAX\tUNITS")
			for _, t := range tests {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, formatBound(t.RefMin), formatBound(t.RefMax), t.Units)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) consultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consult",
		Short: "Request a doctor consultation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.app.Client.RequestConsultation(cmd.Context(), c.bearer())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Status, resp.Details)
			return nil
		},
	}
}

func (c *cli) ledgerCmd() *cobra.Command {
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List locally recorded uploads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.DB == nil {
				return errLedgerNotPersisted
			}
			entries, err := c.app.Ledger.ListByOwner(cmd.Context(), c.app.Config.Owner, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tUPLOADED\tREPORT\tSAVED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					e.AnalysisID, e.FileName, e.UploadedAt.Format(time.RFC3339), formatTime(e.ReportFetchedAt), e.StorageKey)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the local upload ledger",
	}
	cmd.AddCommand(list)
	return cmd
}

// errLedgerNotPersisted is returned by ledger list when no database is
// configured. The in-memory ledger does not outlive a single command.
var errLedgerNotPersisted = errors.New("ledger list needs DATABASE_URL; without it uploads are only recorded for the current command")

func (c *cli) bearer() string {
	if !c.session.Authenticated() {
		telemetry.Warn("cli.no_token", map[string]any{"hint": "run login and pass --token or set EXECAL_TOKEN"})
	}
	return c.session.Token
}

func (c *cli) share(ctx context.Context, out io.Writer, key string, ttl time.Duration) error {
	sharer, ok := c.app.Store.(object.Sharer)
	if !ok {
		return fmt.Errorf("%s store cannot create share links", c.app.Config.ObjectStoreType)
	}
	link, err := sharer.ShareURL(ctx, key, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "share: %s\n", link)
	return nil
}

func readDocument(path string) (workflow.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	name, err := util.SanitizeFileName(filepath.Base(path))
	if err != nil {
		return workflow.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	return workflow.Document{FileName: name, ContentType: ctype, Data: data}, nil
}

func resolvePassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if pw := os.Getenv("EXECAL_PASSWORD"); pw != "" {
		return pw, nil
	}
	return "", errors.New("password required: pass --password or set EXECAL_PASSWORD")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid analysis id %q", raw)
	}
	return id, nil
}

func withSnapshot(w *workflow.Workflow, err error) error {
	return fmt.Errorf("%s: %w", workflow.Describe(w.Snapshot()), err)
}

func detailOf(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail == nil {
		return ""
	}
	if s, ok := payload.Detail.(string); ok {
		return s
	}
	raw, _ := json.Marshal(payload.Detail)
	return string(raw)
}

func formatBound(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
