package state_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
	"github.com/ardanlabs/minernode/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const sender = "127.0.0.1:9081"

func Test_StaleMinedBlock(t *testing.T) {
	t.Log("Given the need to reject a block mined on a head that moved.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer block arrives while mining.", testID)
		{
			st, w := newState(t)

			if err := st.SubmitTransaction("tx1"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept tx1: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept tx1.", success, testID)

			if !slices.Equal(w.shared(), []string{"tx1"}) || w.count("start") == 0 {
				t.Fatalf("\t%s\tTest %d:\tShould share tx1 and signal mining.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould share tx1 and signal mining.", success, testID)

			// The worker takes its snapshot of head H.
			args, err := st.PrepareNextBlock()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould prepare the next block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould prepare the next block.", success, testID)

			// A peer mines H+1 first.
			head := st.RetrieveLatestBlock()
			peerBlock := mine(t, head, "tx2")

			outcome, err := st.ProcessProposedBlock(peerBlock, peer.New(sender))
			if err != nil || outcome != state.OutcomeAppended {
				t.Fatalf("\t%s\tTest %d:\tShould append the peer block: %s: %v", failed, testID, outcome, err)
			}
			t.Logf("\t%s\tTest %d:\tShould append the peer block.", success, testID)

			if w.count("cancel") == 0 || w.count("block") != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould interrupt mining and share the block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould interrupt mining and share the block.", success, testID)

			// The worker finishes its now stale block.
			stale, err := database.POW(context.Background(), args)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould mine the stale block: %v", failed, testID, err)
			}

			err = st.AcceptMinedBlock(stale)
			if !errors.Is(err, state.ErrStaleBlock) || !errors.Is(err, database.ErrInvalidLink) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the stale block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the stale block.", success, testID)

			if !st.RetrieveLatestBlock().Equal(peerBlock) || !slices.Equal(st.RetrieveMempool(), []string{"tx1"}) {
				t.Fatalf("\t%s\tTest %d:\tShould keep the peer block as head and tx1 pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the peer block as head and tx1 pending.", success, testID)

			args, err = st.PrepareNextBlock()
			if err != nil || args.PrevBlock.Hash() != peerBlock.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould mine the next block on the new head: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the next block on the new head.", success, testID)
		}
	}
}

func Test_Orphans(t *testing.T) {
	t.Log("Given the need to handle blocks whose parent is unknown.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the parent arrives as a block.", testID)
		{
			st, w := newState(t)
			gen := st.RetrieveLatestBlock()
			b1 := mine(t, gen, "txA")
			b2 := mine(t, b1, "txB")

			outcome, err := st.ProcessProposedBlock(b2, peer.New(sender))
			if err != nil || outcome != state.OutcomeOrphaned {
				t.Fatalf("\t%s\tTest %d:\tShould buffer the orphan: %s: %v", failed, testID, outcome, err)
			}
			t.Logf("\t%s\tTest %d:\tShould buffer the orphan.", success, testID)

			if st.RetrieveMissingChains() != 1 || w.count("sync") != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould request the missing blocks from the sender.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould request the missing blocks from the sender.", success, testID)

			if outcome, _ := st.ProcessProposedBlock(b2, peer.New(sender)); outcome != state.OutcomeDuplicate {
				t.Fatalf("\t%s\tTest %d:\tShould see the orphan as a duplicate: %s", failed, testID, outcome)
			}
			t.Logf("\t%s\tTest %d:\tShould see the orphan as a duplicate.", success, testID)

			outcome, err = st.ProcessProposedBlock(b1, peer.New(sender))
			if err != nil || outcome != state.OutcomeAppended {
				t.Fatalf("\t%s\tTest %d:\tShould append the parent: %s: %v", failed, testID, outcome, err)
			}
			t.Logf("\t%s\tTest %d:\tShould append the parent.", success, testID)

			if !st.RetrieveLatestBlock().Equal(b2) || st.RetrieveMissingChains() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould resolve the orphan onto the chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould resolve the orphan onto the chain.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the parent arrives in a chain response.", testID)
		{
			st, _ := newState(t)
			gen := st.RetrieveLatestBlock()
			b1 := mine(t, gen, "txA")
			b2 := mine(t, b1, "txB")
			b3 := mine(t, b2, "txC")

			if outcome, _ := st.ProcessProposedBlock(b3, peer.New(sender)); outcome != state.OutcomeOrphaned {
				t.Fatalf("\t%s\tTest %d:\tShould buffer the orphan: %s", failed, testID, outcome)
			}
			t.Logf("\t%s\tTest %d:\tShould buffer the orphan.", success, testID)

			outcome, err := st.ProcessPeerChain([]database.Block{b1, b2})
			if err != nil || !outcome.HeadChanged() {
				t.Fatalf("\t%s\tTest %d:\tShould apply the sub range: %s: %v", failed, testID, outcome, err)
			}
			t.Logf("\t%s\tTest %d:\tShould apply the sub range.", success, testID)

			if !st.RetrieveLatestBlock().Equal(b3) || len(st.RetrieveChain()) != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould resolve the orphan onto the chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould resolve the orphan onto the chain.", success, testID)
		}
	}
}

func Test_Reorganize(t *testing.T) {
	t.Log("Given the need to follow the chain with the most work.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a heavier fork arrives one block at a time.", testID)
		{
			st, w := newState(t)
			gen := st.RetrieveLatestBlock()

			if err := st.SubmitTransaction("tx1"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept tx1: %v", failed, testID, err)
			}
			args, err := st.PrepareNextBlock()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould prepare the next block: %v", failed, testID, err)
			}
			a1, err := database.POW(context.Background(), args)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould mine a1: %v", failed, testID, err)
			}
			if err := st.AcceptMinedBlock(a1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a1: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould mine and accept a1.", success, testID)

			c1 := mine(t, gen, "txC")
			c2 := mine(t, c1, "txD")

			outcome, err := st.ProcessProposedBlock(c1, peer.New(sender))
			if err != nil || outcome != state.OutcomeForkRetained {
				t.Fatalf("\t%s\tTest %d:\tShould retain the equal work fork: %s: %v", failed, testID, outcome, err)
			}
			t.Logf("\t%s\tTest %d:\tShould retain the equal work fork.", success, testID)

			if !st.RetrieveLatestBlock().Equal(a1) || w.count("sync") != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould keep a1 and ask the sender for more.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep a1 and ask the sender for more.", success, testID)

			outcome, err = st.ProcessProposedBlock(c2, peer.New(sender))
			if err != nil || outcome != state.OutcomeReorganized {
				t.Fatalf("\t%s\tTest %d:\tShould reorganize onto the fork: %s: %v", failed, testID, outcome, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reorganize onto the fork.", success, testID)

			if !st.RetrieveLatestBlock().Equal(c2) || st.ContainsTransaction("tx1") {
				t.Fatalf("\t%s\tTest %d:\tShould have c2 as the head.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have c2 as the head.", success, testID)

			if !slices.Equal(st.RetrieveMempool(), []string{"tx1"}) {
				t.Fatalf("\t%s\tTest %d:\tShould return tx1 to the mempool: %v", failed, testID, st.RetrieveMempool())
			}
			t.Logf("\t%s\tTest %d:\tShould return tx1 to the mempool.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen offered chains that must not be adopted.", testID)
		{
			st, _ := newState(t)
			gen := st.RetrieveLatestBlock()
			a1 := mine(t, gen, "txA")
			if _, err := st.ProcessProposedBlock(a1, peer.New(sender)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould append a1: %v", failed, testID, err)
			}

			equal := []database.Block{gen, mine(t, gen, "txB")}
			if _, err := st.ProcessPeerChain(equal); !errors.Is(err, database.ErrInsufficientWork) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the equal work chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the equal work chain.", success, testID)

			c1 := mine(t, gen, "txC")
			invalid := []database.Block{gen, c1, mine(t, c1, "txC")}
			if _, err := st.ProcessPeerChain(invalid); !errors.Is(err, database.ErrDuplicateTransaction) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the invalid chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the invalid chain.", success, testID)

			if !st.RetrieveLatestBlock().Equal(a1) {
				t.Fatalf("\t%s\tTest %d:\tShould keep a1 as the head.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep a1 as the head.", success, testID)
		}
	}
}

func Test_Transactions(t *testing.T) {
	t.Log("Given the need to validate transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen transactions are submitted.", testID)
		{
			st, w := newState(t)

			for _, id := range []string{"", "has space", string(make([]byte, database.MaxTransactionLength+1))} {
				if st.IsValidTransaction(id) {
					t.Fatalf("\t%s\tTest %d:\tShould reject %q.", failed, testID, id)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould reject malformed identifiers.", success, testID)

			if err := st.UpsertNodeTransaction("tx1"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould pool a relayed transaction: %v", failed, testID, err)
			}
			if len(w.shared()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not share a relayed transaction again.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould pool a relayed transaction without sharing it.", success, testID)

			if err := st.SubmitTransaction("tx1"); !errors.Is(err, state.ErrPending) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a pending transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a pending transaction.", success, testID)

			block := mine(t, st.RetrieveLatestBlock(), "tx1")
			if _, err := st.ProcessProposedBlock(block, peer.New(sender)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould append the block: %v", failed, testID, err)
			}

			if st.RetrieveMempoolLength() != 0 || len(st.UpdateTransactionPool()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould drop committed transactions from the mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould drop committed transactions from the mempool.", success, testID)

			if err := st.SubmitTransaction("tx1"); !errors.Is(err, state.ErrCommitted) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a committed transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a committed transaction.", success, testID)

			if _, err := st.PrepareNextBlock(); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould have nothing to mine: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have nothing to mine.", success, testID)
		}
	}
}

func Test_WorkerRegistration(t *testing.T) {
	t.Log("Given the need to register a worker while transactions arrive.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the worker changes during submissions.", testID)
		{
			st, first := newState(t)
			second := fakeWorker{signals: make(map[string]int)}

			var wg sync.WaitGroup
			wg.Add(2)

			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					st.SubmitTransaction(fmt.Sprintf("tx%d", i))
				}
			}()

			go func() {
				defer wg.Done()
				st.SetWorker(&second)
			}()

			wg.Wait()

			total := len(first.shared()) + len(second.shared())
			if total != 50 {
				t.Fatalf("\t%s\tTest %d:\tShould share every transaction with one of the workers: %d", failed, testID, total)
			}
			t.Logf("\t%s\tTest %d:\tShould share every transaction with one of the workers.", success, testID)

			if err := st.Shutdown(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould shut down: %v", failed, testID, err)
			}
			if second.count("shutdown") != 1 || first.count("shutdown") != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould shut down the registered worker only.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould shut down the registered worker only.", success, testID)

			if err := st.SubmitTransaction("late"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a transaction after shutdown: %v", failed, testID, err)
			}
			if slices.Contains(second.shared(), "late") {
				t.Fatalf("\t%s\tTest %d:\tShould not signal a worker that was shut down.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not signal a worker that was shut down.", success, testID)
		}
	}
}

// =============================================================================

// fakeWorker records the signals sent by the state.
type fakeWorker struct {
	mu      sync.Mutex
	signals map[string]int
	txs     []string
}

func (w *fakeWorker) record(signal string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signals[signal]++
}

func (w *fakeWorker) count(signal string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signals[signal]
}

func (w *fakeWorker) shared() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.txs)
}

func (w *fakeWorker) Shutdown()                              { w.record("shutdown") }
func (w *fakeWorker) SignalStartMining()                     { w.record("start") }
func (w *fakeWorker) SignalCancelMining()                    { w.record("cancel") }
func (w *fakeWorker) SignalShareBlock(database.Block, string) { w.record("block") }
func (w *fakeWorker) SignalSync(peer.Peer)                   { w.record("sync") }

func (w *fakeWorker) SignalShareTx(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs = append(w.txs, id)
}

func newState(t *testing.T) (*state.State, *fakeWorker) {
	t.Helper()

	gen := genesis.Default()
	gen.Difficulty = 2

	st, err := state.New(state.Config{
		Host:          "127.0.0.1:9080",
		Genesis:       gen,
		KnownPeers:    peer.NewPeerSet(peer.New(sender)),
		MiningEnabled: true,
	})
	if err != nil {
		t.Fatalf("constructing state: %v", err)
	}

	w := fakeWorker{signals: make(map[string]int)}
	st.SetWorker(&w)

	return st, &w
}

func mine(t *testing.T, prev database.Block, trans ...string) database.Block {
	t.Helper()

	block, err := database.POW(context.Background(), database.POWArgs{
		PrevBlock:  prev,
		Trans:      trans,
		Difficulty: 2,
	})
	if err != nil {
		t.Fatalf("mining: %v", err)
	}

	return block
}
