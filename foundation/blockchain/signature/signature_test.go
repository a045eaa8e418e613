package signature_test

import (
	"strings"
	"testing"

	"github.com/ardanlabs/minernode/foundation/blockchain/signature"
)

// =============================================================================

func Test_Hash(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}
	hash := "0x0f6887ac85101d6d6425a617edf35bd721b5f619fb92c36c3d2224e3bdb0ee5a"

	h := signature.Hash(value)
	if h != hash {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the right hash: %s", h[:6])
	}

	h = signature.Hash(value)
	if h != hash {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", hash)
		t.Fatalf("Should get back the same hash twice.")
	}
}

func Test_LeadingZeros(t *testing.T) {
	type table struct {
		name string
		hash string
		exp  int
	}

	tt := []table{
		{name: "zero", hash: signature.ZeroHash, exp: 64},
		{name: "none", hash: "0x0f6887ac85101d6d6425a617edf35bd721b5f619fb92c36c3d2224e3bdb0ee5a", exp: 1},
		{name: "three", hash: "0x000887ac85101d6d6425a617edf35bd721b5f619fb92c36c3d2224e3bdb0ee5a", exp: 3},
		{name: "no-prefix", hash: strings.Repeat("0", 66), exp: 0},
		{name: "short", hash: "0x00", exp: 0},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			got := signature.LeadingZeros(tst.hash)
			if got != tst.exp {
				t.Logf("got: %d", got)
				t.Logf("exp: %d", tst.exp)
				t.Fatalf("Should get back the right number of leading zeros.")
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_IsHash(t *testing.T) {
	if !signature.IsHash(signature.ZeroHash) {
		t.Fatalf("Should accept the zero hash.")
	}

	if signature.IsHash("0xabc") {
		t.Fatalf("Should reject a short hash.")
	}

	if signature.IsHash("0x" + strings.Repeat("z", 64)) {
		t.Fatalf("Should reject a non hex hash.")
	}
}
