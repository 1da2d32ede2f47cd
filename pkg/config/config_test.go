package config

import (
	"strings"
	"testing"

	"github.com/cookkie03/davsync/pkg/model"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CALDAV_URL", "https://dav.example.org/tasks/")
	t.Setenv("CALDAV_USERNAME", "sync")
	t.Setenv("CALDAV_PASSWORD", "secret")
	t.Setenv("NOTION_TOKEN", "ntn_x")
	t.Setenv("NOTION_DATABASE_ID", "db-1")
	t.Setenv("AUTHORITY", "b")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CalDAVURL != "https://dav.example.org/tasks/" {
		t.Errorf("caldav url = %q", cfg.CalDAVURL)
	}
	if !cfg.DryRun {
		t.Error("dry run not picked up")
	}
	side, err := cfg.AuthoritySide()
	if err != nil {
		t.Fatalf("AuthoritySide: %v", err)
	}
	if side != model.SideB {
		t.Errorf("authority = %v", side)
	}
	if err := cfg.RequireTasks(); err != nil {
		t.Errorf("RequireTasks: %v", err)
	}
}

func TestAuthorityDefaultsToSideA(t *testing.T) {
	cfg := &Config{}
	side, err := cfg.AuthoritySide()
	if err != nil || side != model.SideA {
		t.Errorf("side = %v, err = %v", side, err)
	}
}

func TestInvalidAuthorityRejected(t *testing.T) {
	cfg := &Config{Authority: "both"}
	if _, err := cfg.AuthoritySide(); err == nil {
		t.Error("invalid authority accepted")
	}
}

func TestRequireTasksNamesMissingVars(t *testing.T) {
	cfg := &Config{CalDAVURL: "https://dav.example.org/"}
	err := cfg.RequireTasks()
	if err == nil {
		t.Fatal("incomplete config accepted")
	}
	for _, want := range []string{"CALDAV_USERNAME", "NOTION_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
}
