package jwt

import (
	"testing"
	"time"
)

func FuzzParse(f *testing.F) {
	mgr, err := NewManager(Config{
		TTL:           15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("fuzz-secret-fuzz-secret-fuzz-sec"),
		Issuer:        "goidentity",
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := mgr.Create("user-1", "session-1")
	if err != nil {
		f.Fatal(err)
	}

	for _, seed := range []string{
		valid,
		valid + "x",
		"",
		"a.b.c",
		"eyJhbGciOiJub25lIn0.eyJ1c2VySWQiOiJ1In0.",
		"eyJhbGciOiJIUzI1NiJ9.e30.",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err != nil {
			return
		}
		if claims.UserID == "" || claims.SessionID == "" {
			t.Fatalf("accepted claims without ids: %+v", claims)
		}
	})
}
