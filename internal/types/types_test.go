package types

import (
	"testing"
	"time"
)

func TestNewTransferID(t *testing.T) {
	at := time.Date(2024, 3, 7, 14, 30, 5, 0, time.Local)
	id := NewTransferID("RTE_A", "1.2.840.113619.2.55.77", at)
	// Last 8 characters of the study UID.
	if id != "RTE_A_20240307143005_.2.55.77" {
		t.Errorf("NewTransferID = %q", id)
	}
}

func TestNewTransferIDShortUID(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	id := NewTransferID("R", "1.2.3", at)
	if id != "R_20240101000000_1.2.3" {
		t.Errorf("NewTransferID = %q", id)
	}
}

func TestSanitizeUID(t *testing.T) {
	cases := map[string]string{
		"1.2.840.10008":  "1.2.840.10008",
		"1.2/3\\4:5*6":   "1.2_3_4_5_6",
		"abc-DEF.123":    "abc-DEF.123",
		"uid with space": "uid_with_space",
	}
	for in, want := range cases {
		if got := SanitizeUID(in); got != want {
			t.Errorf("SanitizeUID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	for _, s := range []TransferStatus{StatusCompleted, StatusPartial, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TransferStatus{StatusReceived, StatusProcessing, StatusForwarding} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	rec := &TransferRecord{
		TransferID: "t1",
		DestinationResults: []*DestinationResult{
			{Destination: "dest1", Status: DestPending},
		},
	}
	cp := rec.Clone()
	cp.DestinationResults[0].Status = DestSuccess
	if rec.DestinationResults[0].Status != DestPending {
		t.Error("Clone shares destination results with the original")
	}
}
