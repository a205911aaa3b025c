package model

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TxStatus
		want     bool
	}{
		{TxPending, TxConfirmed, true},
		{TxPending, TxFailed, true},
		{TxPending, TxPending, false},
		{TxConfirmed, TxFailed, false},
		{TxFailed, TxConfirmed, false},
		{TxConfirmed, TxPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDeriveOperationStatus(t *testing.T) {
	tx := func(statuses ...TxStatus) []Transaction {
		out := make([]Transaction, len(statuses))
		for i, s := range statuses {
			out[i] = Transaction{Status: s}
		}
		return out
	}
	cases := []struct {
		name string
		txs  []Transaction
		want OperationStatus
	}{
		{"empty", nil, OperationEmpty},
		{"pending wins", tx(TxConfirmed, TxPending, TxFailed), OperationPending},
		{"all confirmed", tx(TxConfirmed, TxConfirmed), OperationConfirmed},
		{"all failed", tx(TxFailed), OperationFailed},
		{"partial", tx(TxConfirmed, TxFailed), OperationPartial},
	}
	for _, tc := range cases {
		if got := DeriveOperationStatus(tc.txs); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}
