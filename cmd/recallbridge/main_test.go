package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "recallbridge dev") {
		t.Errorf("expected output to contain 'recallbridge dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}

	out := buf.String()
	for _, sub := range []string{"serve", "import", "refresh", "build-queue", "create-touches", "send", "stats", "reset-errored", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help missing subcommand %q:\n%s", sub, out)
		}
	}
}

func TestImportCmd_RequiresFileArg(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"import"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected arg validation error")
	}
}

func TestCampaignAndType_Defaults(t *testing.T) {
	cfg := testCfg()
	camp, tt := campaignAndType(cfg, "", "")
	if camp != "camp-1" || tt != "T1" {
		t.Fatalf("defaults: got %q %q", camp, tt)
	}
	camp, tt = campaignAndType(cfg, "camp-9", "T2")
	if camp != "camp-9" || tt != "T2" {
		t.Fatalf("overrides: got %q %q", camp, tt)
	}
}
