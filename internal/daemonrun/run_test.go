package daemonrun_test

import (
	"context"
	"testing"

	"snatcher/internal/daemonrun"
	"snatcher/internal/logging"
	"snatcher/internal/testsupport"
)

func TestBuildWiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithNarrative(t, "Seasoned Go engineer."))
	cfg.Resource.MACAddress = "aa:bb:cc:dd:ee:ff"
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemonrun.Build(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatalf("status = %+v", status)
	}
	d.Stop()
}
