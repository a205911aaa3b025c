package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"yieldRouter/internal/config"
	"yieldRouter/internal/multicall"
)

func writeBatchFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calls.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write batch file: %v", err)
	}
	return path
}

func TestLoadBatchFile(t *testing.T) {
	path := writeBatchFile(t, `
method: harvest
calls:
  - target: "0x73feaa1eE314F8c655E354234017bE2193C9E24E"
    data: "0xe2bbb1580000000000000000000000000000000000000000000000000000000000000001"
    meta:
      pool: "1"
  - target: "0x73feaa1eE314F8c655E354234017bE2193C9E24E"
    data: "0xd09ef241"
`)
	file, calls, err := loadBatchFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if file.Method != "harvest" {
		t.Fatalf("unexpected method %q", file.Method)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Target != common.HexToAddress("0x73feaa1eE314F8c655E354234017bE2193C9E24E") {
		t.Fatalf("unexpected target %s", calls[0].Target.Hex())
	}
	if len(calls[0].EncodedCall) != 36 || calls[0].Meta["pool"] != "1" {
		t.Fatalf("unexpected first call %+v", calls[0])
	}
	if len(calls[1].EncodedCall) != 4 || calls[1].Meta != nil {
		t.Fatalf("unexpected second call %+v", calls[1])
	}
}

func TestLoadBatchFileRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"no calls":     "method: x\ncalls: []\n",
		"bad target":   "calls:\n  - target: nope\n    data: \"0x01\"\n",
		"bad data":     "calls:\n  - target: \"0x73feaa1eE314F8c655E354234017bE2193C9E24E\"\n    data: zz\n",
		"invalid yaml": "calls: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := loadBatchFile(writeBatchFile(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSelectAccount(t *testing.T) {
	only := common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	accounts := []config.Account{{Address: only, KeyEnv: "ENGINE_KEY"}}

	got, err := selectAccount(accounts, "")
	if err != nil || got != only {
		t.Fatalf("got %s, %v", got.Hex(), err)
	}
	if _, err := selectAccount(nil, ""); err == nil {
		t.Fatalf("expected error without accounts")
	}
	if _, err := selectAccount(accounts, "0x12"); err == nil {
		t.Fatalf("expected error for invalid account")
	}
}

func TestDescribeBatchDryRun(t *testing.T) {
	res := &multicall.BatchResult{
		GasLimit: 120000,
		DryRun:   true,
		Calls: []multicall.CallResult{
			{Index: 0, Target: common.HexToAddress("0x01"), Success: true, ReturnData: []byte{0x01}},
			{Index: 1, Target: common.HexToAddress("0x02"), Success: false},
		},
	}
	out := describeBatch("op", res)
	if !out.DryRun || out.TxHash != "" || out.GasLimit != 120000 {
		t.Fatalf("unexpected output %+v", out)
	}
	if len(out.Calls) != 2 || out.Calls[0].ReturnData != "0x01" || out.Calls[1].Success {
		t.Fatalf("unexpected calls %+v", out.Calls)
	}
}
