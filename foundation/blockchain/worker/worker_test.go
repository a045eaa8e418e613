package worker_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/state"
	"github.com/ardanlabs/minernode/foundation/blockchain/worker"
)

func Test_MineSubmitted(t *testing.T) {
	t.Log("Given the need to mine submitted transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a client submits two transactions.", testID)
		{
			gen := genesis.Default()
			gen.Difficulty = 1

			st, err := state.New(state.Config{
				Host:          "127.0.0.1:0",
				Genesis:       gen,
				MiningEnabled: true,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the state: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to construct the state.", success, testID)

			var mu sync.Mutex
			shared := 0
			ev := func(v string, args ...any) {
				if v == "worker: SignalShareBlock: share block signaled" {
					mu.Lock()
					shared++
					mu.Unlock()
				}
			}

			w := worker.Run(st, worker.Config{EvHandler: ev})
			defer st.Shutdown()

			for _, id := range []string{"tx1", "tx2"} {
				if err := st.SubmitTransaction(id); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould accept %s: %v", failed, testID, id, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould accept the transactions.", success, testID)

			deadline := time.Now().Add(10 * time.Second)
			for !(st.ContainsTransaction("tx1") && st.ContainsTransaction("tx2")) {
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tTest %d:\tShould mine both transactions: status[%s]", failed, testID, w.MiningStatus())
				}
				time.Sleep(10 * time.Millisecond)
			}
			t.Logf("\t%s\tTest %d:\tShould mine both transactions.", success, testID)

			if n := len(st.RetrieveChain()); n != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould mine one transaction per block: blocks[%d]", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould mine one transaction per block.", success, testID)

			if n := st.RetrieveMempoolLength(); n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould empty the mempool: %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould empty the mempool.", success, testID)

			count := func() int {
				mu.Lock()
				defer mu.Unlock()
				return shared
			}

			for count() < 2 {
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tTest %d:\tShould queue every mined block for sharing: %d", failed, testID, count())
				}
				time.Sleep(10 * time.Millisecond)
			}
			if n := count(); n != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould queue every mined block for sharing: %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould queue every mined block for sharing.", success, testID)
		}
	}
}
