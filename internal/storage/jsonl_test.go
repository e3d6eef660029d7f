package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"intentLedger/internal/model"
)

func TestJSONLJournalAppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "activity.jsonl")
	j := NewJSONLJournal(path)

	first := NewActivity(model.OpDeposit, "0xABCDEF")
	first.Amount = "1000000"
	Append(context.Background(), j, nil, first, nil)

	second := NewActivity(model.OpWithdraw, "0xabcdef")
	Append(context.Background(), j, nil, second, errors.New("transaction reverted"))

	records, err := ReadJSONL(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID == "" || records[0].ID == records[1].ID {
		t.Fatalf("expected distinct ids: %q %q", records[0].ID, records[1].ID)
	}
	if records[0].Status != StatusConfirmed || records[0].Account != "0xabcdef" || records[0].Amount != "1000000" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Status != StatusFailed || records[1].Error != "transaction reverted" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestAppendIgnoresNilJournal(t *testing.T) {
	Append(context.Background(), nil, nil, NewActivity(model.OpDeposit, "0x01"), nil)
}

func TestAppendTakesTxHashFromRevert(t *testing.T) {
	j := &MemoryJournal{}
	revert := &model.RevertError{TxHash: "0xfeed", Reason: "Max intents reached"}
	Append(context.Background(), j, nil, NewActivity(model.OpSubmit, "0x01"), fmt.Errorf("submit: %w", revert))

	records := j.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TxHash != "0xfeed" || records[0].Status != StatusFailed {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}
