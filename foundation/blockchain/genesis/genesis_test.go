package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
)

func Test_Load(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "genesis.json")
	if err := os.WriteFile(path, []byte(`{"difficulty": 2}`), 0600); err != nil {
		t.Fatalf("Should be able to write the genesis file: %s", err)
	}

	gen, err := genesis.Load(path)
	if err != nil {
		t.Fatalf("Should be able to load the genesis file: %s", err)
	}

	if gen.Difficulty != 2 {
		t.Logf("got: %d", gen.Difficulty)
		t.Logf("exp: %d", 2)
		t.Fatalf("Should get back the difficulty from the file.")
	}

	if !gen.Date.Equal(genesis.Default().Date) {
		t.Fatalf("Should keep the default date when the file doesn't set one.")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"difficulty": 40}`), 0600); err != nil {
		t.Fatalf("Should be able to write the genesis file: %s", err)
	}

	if _, err := genesis.Load(bad); err == nil {
		t.Fatalf("Should reject a difficulty over the max.")
	}
}
