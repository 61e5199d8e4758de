package devserver_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"execal-client/internal/devserver"
	"execal-client/internal/execal"
	"execal-client/internal/extract"
	"execal-client/internal/ledger"
	"execal-client/internal/queue"
	"execal-client/internal/shared/auth"
	"execal-client/internal/shared/storage/object/local"
	"execal-client/internal/transport"
	"execal-client/internal/workflow"
)

func startBackend(t *testing.T, altKey bool) *execal.Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	signer, err := auth.NewSigner("e2e-secret", "dev", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	router, err := devserver.NewRouter(devserver.Options{
		Store:    local.New(t.TempDir()),
		Signer:   signer,
		AltIDKey: altKey,
		HashCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client, err := execal.NewHTTP(srv.URL, transport.Options{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return client
}

func TestClientWorkflowAgainstDevBackend(t *testing.T) {
	for _, altKey := range []bool{false, true} {
		altKey := altKey
		name := "analysis_id"
		if altKey {
			name = "analysisId"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			client := startBackend(t, altKey)

			if err := client.Register(ctx, "a@x.com", "secret1"); err != nil {
				t.Fatalf("Register: %v", err)
			}
			token, err := client.Login(ctx, "a@x.com", "secret1")
			if err != nil || token == "" {
				t.Fatalf("Login: %q %v", token, err)
			}

			repo := ledger.NewMemoryRepo()
			notifier := &queue.MemoryClient{}
			var states []string
			w := workflow.New(client,
				workflow.WithLedger(repo),
				workflow.WithNotifier(notifier),
				workflow.WithOwner("e2e"),
				workflow.WithObserver(func(tr workflow.Transition) { states = append(states, tr.To.String()) }),
			)

			id, err := w.Start(ctx, token, workflow.Document{
				FileName:    "labs.txt",
				ContentType: "text/plain",
				Data:        []byte("Glucose: 3.1 mmol/L\nCholesterol: 250 mg/dL"),
			})
			if err != nil || id != 1 {
				t.Fatalf("Start: %d %v", id, err)
			}
			snap := w.Snapshot()
			if snap.State != workflow.ReportReady || snap.Report == nil {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
			if !strings.Contains(snap.Report.Body, "\n  \"analysis_id\": 1,") || !strings.Contains(snap.Report.Body, `"deviation": "low"`) {
				t.Fatalf("expected pretty-printed report, got %s", snap.Report.Body)
			}

			if err := w.FetchPDF(ctx, token); err != nil {
				t.Fatalf("FetchPDF: %v", err)
			}
			store := local.New(t.TempDir())
			key, err := w.Save(ctx, store)
			if err != nil || key != "reports/e2e/1/report.pdf" {
				t.Fatalf("Save: %q %v", key, err)
			}
			rc, err := store.Open(ctx, key)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			text, err := extract.ExtractTextFromBytes(ctx, data, "application/pdf", key)
			if err != nil || !strings.Contains(text, "Cholesterol") {
				t.Fatalf("saved pdf text %q %v", text, err)
			}

			want := []string{"uploading", "uploaded", "report_fetching", "report_ready", "pdf_fetching", "pdf_ready"}
			if strings.Join(states, ",") != strings.Join(want, ",") {
				t.Fatalf("unexpected transitions %v", states)
			}
			entry, err := repo.Get(ctx, 1)
			if err != nil || entry.StorageKey != key {
				t.Fatalf("unexpected ledger entry %+v %v", entry, err)
			}
			if msgs := notifier.Messages(); len(msgs) != 2 {
				t.Fatalf("expected two notifications, got %+v", msgs)
			}
		})
	}
}

func TestClientErrorsAgainstDevBackend(t *testing.T) {
	ctx := context.Background()
	client := startBackend(t, false)

	if err := client.Register(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := client.Register(ctx, "a@x.com", "secret1")
	apiErr, ok := execal.AsAPIError(err)
	if !ok || apiErr.Status != http.StatusBadRequest || !strings.Contains(string(apiErr.Body), "User exists") {
		t.Fatalf("expected 400 User exists, got %v", err)
	}

	token, err := client.Login(ctx, "a@x.com", "wrong-password")
	if token != "" || execal.Kind(err) != execal.KindAPI {
		t.Fatalf("expected api error without token, got %q %v", token, err)
	}

	if _, err := client.Upload(ctx, "", "labs.txt", "text/plain", []byte("x")); execal.Kind(err) != execal.KindAPI {
		t.Fatalf("expected 401 api error for anonymous upload, got %v", err)
	}

	token, _ = client.Login(ctx, "a@x.com", "secret1")
	w := workflow.New(client)
	if _, err := w.Start(ctx, token, workflow.Document{FileName: "a.txt", Data: []byte("Glucose 5")}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	other := startBackend(t, false)
	_, err = other.GetReport(ctx, token, 1)
	if execal.Kind(err) != execal.KindAPI {
		t.Fatalf("token from another backend must be rejected, got %v", err)
	}
}

func TestReadHelpersAgainstDevBackend(t *testing.T) {
	ctx := context.Background()
	client := startBackend(t, false)

	status, err := client.Ping(ctx)
	if err != nil || !strings.Contains(status, "Medical Lab MVP Backend") {
		t.Fatalf("Ping: %q %v", status, err)
	}

	refs, err := client.ReferenceTests(ctx)
	if err != nil || len(refs) != 2 || refs[0].Name != "Glucose" || refs[0].RefMax == nil || *refs[0].RefMax != 5.5 {
		t.Fatalf("ReferenceTests: %+v %v", refs, err)
	}

	_ = client.Register(ctx, "a@x.com", "secret1")
	token, _ := client.Login(ctx, "a@x.com", "secret1")
	if _, err := client.Upload(ctx, token, "a.txt", "text/plain", []byte("Glucose 5")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	history, err := client.History(ctx, token)
	if err != nil || len(history) != 1 || history[0].ID != 1 || history[0].Source != "web" {
		t.Fatalf("History: %+v %v", history, err)
	}
	consult, err := client.RequestConsultation(ctx, token)
	if err != nil || consult.Status != "requested" || consult.UserID != 1 {
		t.Fatalf("RequestConsultation: %+v %v", consult, err)
	}
}
