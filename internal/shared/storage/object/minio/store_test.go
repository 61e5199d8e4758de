package minio

import (
	"context"
	"net/url"
	"testing"
	"time"
)

func TestNewStoreValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing endpoint", opts: Options{Bucket: "reports"}},
		{name: "missing bucket", opts: Options{Endpoint: "localhost:9000"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newStore(tt.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestShareURL(t *testing.T) {
	s, err := newStore(Options{
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		Bucket:    "reports",
		Prefix:    "/execal/",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	link, err := s.ShareURL(context.Background(), "reports/abc/42/report.pdf", 10*time.Minute)
	if err != nil {
		t.Fatalf("ShareURL: %v", err)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "localhost:9000" || u.Path != "/reports/execal/reports/abc/42/report.pdf" {
		t.Fatalf("unexpected presigned url %s", link)
	}
	if u.Query().Get("X-Amz-Expires") != "600" {
		t.Fatalf("expected 600s expiry, got %q", u.Query().Get("X-Amz-Expires"))
	}
}
