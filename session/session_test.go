package session

import (
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/store"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	value := Encode("u-1", "s3cret")
	id, secret, err := Decode(value)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if id != "u-1" || secret != "s3cret" {
		t.Fatalf("unexpected pair %q %q", id, secret)
	}
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	for _, value := range []string{"", "e30=", Encode("", "x"), Encode("u", "")} {
		if _, _, err := Decode(value); err != ErrMalformedCredential {
			t.Fatalf("expected ErrMalformedCredential for %q, got %v", value, err)
		}
	}
}

func TestFindCurrentOnlyMatchingSession(t *testing.T) {
	a := &store.Session{Meta: store.Meta{ID: "a"}, Secret: internal.HashSecret("secret-a")}
	b := &store.Session{Meta: store.Meta{ID: "b"}, Secret: internal.HashSecret("secret-b")}
	sessions := []*store.Session{a, b}

	MarkCurrent(sessions, "secret-b")
	if a.Current || !b.Current {
		t.Fatalf("expected only b current, got a=%v b=%v", a.Current, b.Current)
	}

	MarkCurrent(sessions, "unknown")
	if a.Current || b.Current {
		t.Fatal("no session should be current for an unknown secret")
	}
	if FindCurrent(sessions, "") != "" {
		t.Fatal("empty secret must not match")
	}
}

func TestAddFactorIdempotent(t *testing.T) {
	s := &store.Session{Factors: InitialFactors(ProviderEmail)}
	if !AddFactor(s, FactorTOTP) {
		t.Fatal("expected first add to change the set")
	}
	if AddFactor(s, FactorTOTP) {
		t.Fatal("expected second add to be a no-op")
	}
	if len(s.Factors) != 2 {
		t.Fatalf("expected 2 factors, got %v", s.Factors)
	}
}

func TestInitialFactors(t *testing.T) {
	tests := map[string][]string{
		ProviderEmail:     {FactorPassword},
		ProviderAnonymous: {FactorAnonymous},
		ProviderOAuth2:    {FactorEmail, FactorOAuth2},
		ProviderPhone:     {FactorPhone},
		ProviderToken:     {FactorToken},
	}
	for provider, want := range tests {
		got := InitialFactors(provider)
		if len(got) != len(want) {
			t.Fatalf("%s: got %v want %v", provider, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: got %v want %v", provider, got, want)
			}
		}
	}
}

func TestOverflowEvictsOldest(t *testing.T) {
	base := time.Unix(1000, 0)
	var sessions []*store.Session
	for i := 0; i < 5; i++ {
		sessions = append(sessions, &store.Session{Meta: store.Meta{ID: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(4-i) * time.Minute)}})
	}
	evict := Overflow(sessions, 3, "")
	if len(evict) != 2 {
		t.Fatalf("expected 2 evictions, got %d", len(evict))
	}
	// e and d are the oldest.
	if evict[0].ID != "e" || evict[1].ID != "d" {
		t.Fatalf("unexpected eviction order %s %s", evict[0].ID, evict[1].ID)
	}
	if Overflow(sessions, 0, "") != nil {
		t.Fatal("limit 0 disables eviction")
	}
}

func TestOverflowNeverEvictsKept(t *testing.T) {
	same := time.Unix(1000, 0)
	sessions := []*store.Session{
		{Meta: store.Meta{ID: "new", CreatedAt: same}},
		{Meta: store.Meta{ID: "old", CreatedAt: same}},
	}
	evict := Overflow(sessions, 1, "new")
	if len(evict) != 1 || evict[0].ID != "old" {
		t.Fatalf("expected only old to be evicted, got %v", evict)
	}
}

func TestExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	s := &store.Session{Expire: now}
	if !Expired(s, now) {
		t.Fatal("session must be expired at its expire instant")
	}
	if Expired(s, now.Add(-time.Second)) {
		t.Fatal("session must be live before expire")
	}
}
