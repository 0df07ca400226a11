package daemon

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/tsync/internal/notify"
	"github.com/mschirtzinger/tsync/internal/schema"
)

func TestOpLog_WritesCommittedEvents(t *testing.T) {
	var buf bytes.Buffer
	log := NewOpLog(&buf, 0)
	at := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	online := true

	item := schema.Item{ID: "srv-1", State: schema.StateSynced}
	item.Title = "Buy milk"
	log.Publish(notify.Event{Stage: notify.StageTentative, Kind: notify.KindUpsert, ID: "offline_1_a", Timestamp: at})
	log.Publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindUpsert, Collection: schema.CollectionTasks,
		ParentID: "list-1", ID: "srv-1", PreviousID: "offline_1_a", Item: &item, Timestamp: at})
	log.Publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindConnectivity, Online: &online, Timestamp: at})
	log.Publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindSync, Result: &notify.SyncResult{Synced: 1}, Timestamp: at})

	if err := log.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	entries, err := ParseOpLog(&buf)
	if err != nil {
		t.Fatalf("ParseOpLog() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3 (tentative skipped)", len(entries))
	}

	if !entries[0].Time.Equal(at) {
		t.Errorf("entries[0].Time = %v, want %v", entries[0].Time, at)
	}
	entries[0].Time = time.Time{}
	want := OpLogEntry{Seq: 1, Kind: notify.KindUpsert, Collection: schema.CollectionTasks,
		ParentID: "list-1", ID: "srv-1", PreviousID: "offline_1_a", Title: "Buy milk", State: schema.StateSynced}
	if !reflect.DeepEqual(entries[0], want) {
		t.Errorf("entries[0] = %+v, want %+v", entries[0], want)
	}
	if entries[1].Online == nil || !*entries[1].Online {
		t.Errorf("entries[1].Online = %v, want true", entries[1].Online)
	}
	if entries[2].Result == nil || entries[2].Result.Synced != 1 || entries[2].Seq != 3 {
		t.Errorf("entries[2] = %+v, want sync result seq 3", entries[2])
	}
}

func TestOpLog_ContinuesSequence(t *testing.T) {
	var buf bytes.Buffer
	log := NewOpLog(&buf, 41)
	log.Publish(notify.Event{Stage: notify.StageCommitted, Kind: notify.KindSync})

	entries, err := ParseOpLog(&buf)
	if err != nil {
		t.Fatalf("ParseOpLog() failed: %v", err)
	}
	if LastSeq(entries) != 42 {
		t.Errorf("LastSeq() = %d, want 42", LastSeq(entries))
	}
}

func TestParseOpLog(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "empty input", input: "", want: 0},
		{name: "blank lines", input: "\n{\"seq\":1,\"kind\":\"sync\"}\n\n{\"seq\":2,\"kind\":\"resync\"}\n", want: 2},
		{name: "no trailing newline", input: `{"seq":1,"kind":"sync"}`, want: 1},
		{name: "malformed line", input: "{\"seq\":1}\nnot json\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOpLog(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOpLog() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "line 2") {
				t.Errorf("error %q does not name the line", err)
			}
			if len(got) != tt.want {
				t.Errorf("ParseOpLog() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEntriesSince(t *testing.T) {
	entries := []OpLogEntry{{Seq: 1}, {Seq: 2}, {Seq: 3}}

	tests := []struct {
		name     string
		lastSeen int64
		want     []int64
	}{
		{"from start", 0, []int64{1, 2, 3}},
		{"middle", 1, []int64{2, 3}},
		{"up to date", 3, nil},
		{"ahead", 9, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			for _, e := range EntriesSince(entries, tt.lastSeen) {
				got = append(got, e.Seq)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EntriesSince(%d) = %v, want %v", tt.lastSeen, got, tt.want)
			}
		})
	}
}

func TestTail(t *testing.T) {
	entries := []OpLogEntry{{Seq: 1}, {Seq: 2}, {Seq: 3}}
	if got := Tail(entries, 2); len(got) != 2 || got[0].Seq != 2 {
		t.Errorf("Tail(2) = %v", got)
	}
	if got := Tail(entries, 0); len(got) != 3 {
		t.Errorf("Tail(0) = %v, want all", got)
	}
}
