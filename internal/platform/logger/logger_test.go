package logger

import "testing"

func TestSanitizeRedactsCredentialsAndBodies(t *testing.T) {
	kv := sanitizeKVs([]interface{}{
		"authorization", "Bearer abc",
		"body", "hello there",
		"counterpart", "p-1",
	})
	if len(kv) != 6 {
		t.Fatalf("len: want=6 got=%d", len(kv))
	}
	if kv[1] != "[REDACTED]" {
		t.Fatalf("authorization: want=[REDACTED] got=%v", kv[1])
	}
	if kv[3] != "[REDACTED]" {
		t.Fatalf("body: want=[REDACTED] got=%v", kv[3])
	}
	if kv[5] != "p-1" {
		t.Fatalf("counterpart: want=p-1 got=%v", kv[5])
	}
}

func TestSanitizeHashesUserIDs(t *testing.T) {
	kv := sanitizeKVs([]interface{}{"user_id", "u-42"})
	got, ok := kv[1].(string)
	if !ok || len(got) != len("hash:")+12 {
		t.Fatalf("user_id: unexpected hashed value %v", kv[1])
	}
	if again := sanitizeKVs([]interface{}{"user_id", "u-42"}); again[1] != got {
		t.Fatalf("hash not stable: %v vs %v", again[1], got)
	}
}

func TestSanitizeKeepsDanglingKey(t *testing.T) {
	kv := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(kv) != 3 || kv[2] != "dangling" {
		t.Fatalf("unexpected kv: %v", kv)
	}
}

func TestNopLogger(t *testing.T) {
	log, err := New("nop")
	if err != nil {
		t.Fatalf("New(nop): %v", err)
	}
	log.With("component", "test").Info("discarded", "token", "x")
	log.Sync()
}
