package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prolearn/prolearn/internal/model"
)

func TestEvent_Validate(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"registered", Event{Action: model.AuditUserRegistered, Code: "prln26aa001", UserID: "01J0", OccurredAt: ts}, false},
		{"registered without user", Event{Action: model.AuditUserRegistered, Code: "prln26aa001", OccurredAt: ts}, true},
		{"deleted", Event{Action: model.AuditUserDeleted, Code: "prln26qa999", OccurredAt: ts}, false},
		{"minted with reserved pair", Event{Action: model.AuditIdentifierMinted, Code: "prln26pa001", OccurredAt: ts}, true},
		{"imported", Event{Action: model.AuditIdentifiersImported, Count: 12, OccurredAt: ts}, false},
		{"imported negative", Event{Action: model.AuditIdentifiersImported, Count: -1, OccurredAt: ts}, true},
		{"unknown action", Event{Action: "user.renamed", Code: "prln26aa001", OccurredAt: ts}, true},
		{"missing time", Event{Action: model.AuditUserDeleted, Code: "prln26aa001"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstructorsProduceValidEvents(t *testing.T) {
	t.Parallel()

	user := &model.User{ID: "01J0000000000000000000000A", Code: "prln26ab017"}
	for _, e := range []Event{
		UserRegistered(user),
		UserDeleted(user.Code),
		IdentifierMinted("prln26zz999"),
		IdentifiersImported(3),
	} {
		if err := e.Validate(); err != nil {
			t.Errorf("%s: %v", e.Action, err)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	valid, err := json.Marshal(Event{Action: model.AuditUserDeleted, Code: "prln26aa005", OccurredAt: ts.UnixMilli()})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		values     map[string]interface{}
		wantReason string
	}{
		{"valid", map[string]interface{}{"payload": string(valid)}, ""},
		{"missing payload", map[string]interface{}{}, "invalid_format"},
		{"not json", map[string]interface{}{"payload": "{"}, "unmarshal_error"},
		{"invalid code", map[string]interface{}{"payload": `{"a":"user.deleted","c":"nope","t":1}`}, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			event, reason, err := decodeMessage(redis.XMessage{ID: "1-0", Values: tt.values})
			if reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q (err %v)", reason, tt.wantReason, err)
			}
			if tt.wantReason != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}

			m := event.toModel("01J0000000000000000000000Z", "1-0")
			if m.EventID != "1-0" || m.Code != "prln26aa005" {
				t.Errorf("unexpected model %+v", m)
			}
			if !m.OccurredAt.Equal(ts) {
				t.Errorf("OccurredAt = %v, want %v", m.OccurredAt, ts)
			}
		})
	}
}
