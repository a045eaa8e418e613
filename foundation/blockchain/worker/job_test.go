package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/signature"
	"github.com/ardanlabs/minernode/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_JobCompletes(t *testing.T) {
	t.Log("Given the need to mine a block with a job.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining at a low difficulty.", testID)
		{
			job := worker.NewJob(database.POWArgs{
				PrevBlock:  database.GenesisBlock(genesis.Default()),
				Trans:      []string{"tx1"},
				Difficulty: 1,
			})

			if job.Status() != worker.StatusIdle {
				t.Fatalf("\t%s\tTest %d:\tShould start idle: %s", failed, testID, job.Status())
			}
			t.Logf("\t%s\tTest %d:\tShould start idle.", success, testID)

			if err := job.Start(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start the job: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to start the job.", success, testID)

			if err := job.Start(context.Background()); !errors.Is(err, worker.ErrJobStarted) {
				t.Fatalf("\t%s\tTest %d:\tShould not start the job twice: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not start the job twice.", success, testID)

			block, err := job.Result()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould get a mined block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a mined block.", success, testID)

			if job.Status() != worker.StatusCompleted || signature.LeadingZeros(block.Hash()) < 1 {
				t.Fatalf("\t%s\tTest %d:\tShould be completed with a solved hash: %s", failed, testID, job.Status())
			}
			t.Logf("\t%s\tTest %d:\tShould be completed with a solved hash.", success, testID)
		}
	}
}

func Test_JobInterrupt(t *testing.T) {
	t.Log("Given the need to interrupt a job.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen mining at an unreachable difficulty.", testID)
		{
			job := worker.NewJob(database.POWArgs{
				PrevBlock:  database.GenesisBlock(genesis.Default()),
				Trans:      []string{"tx1"},
				Difficulty: genesis.MaxDifficulty,
			})

			if err := job.Start(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start the job: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to start the job.", success, testID)

			job.Interrupt()

			select {
			case <-job.Done():
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould stop promptly after the interrupt.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould stop promptly after the interrupt.", success, testID)

			if _, err := job.Result(); !errors.Is(err, context.Canceled) || job.Status() != worker.StatusCancelled {
				t.Fatalf("\t%s\tTest %d:\tShould be cancelled: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be cancelled.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen interrupted before it starts.", testID)
		{
			job := worker.NewJob(database.POWArgs{})
			job.Interrupt()

			if job.Status() != worker.StatusCancelled {
				t.Fatalf("\t%s\tTest %d:\tShould be cancelled: %s", failed, testID, job.Status())
			}
			t.Logf("\t%s\tTest %d:\tShould be cancelled.", success, testID)

			if err := job.Start(context.Background()); !errors.Is(err, worker.ErrJobStarted) {
				t.Fatalf("\t%s\tTest %d:\tShould not start a cancelled job: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not start a cancelled job.", success, testID)
		}
	}
}

func Test_StatusString(t *testing.T) {
	t.Log("Given the need to name job states.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen formatting known and unknown states.", testID)
		{
			if got := worker.StatusMining.String(); got != "mining" {
				t.Fatalf("\t%s\tTest %d:\tShould name a known state: %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould name a known state.", success, testID)

			if got := worker.Status(99).String(); got != "status(99)" {
				t.Fatalf("\t%s\tTest %d:\tShould show the value of an unknown state: %q", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould show the value of an unknown state.", success, testID)
		}
	}
}
