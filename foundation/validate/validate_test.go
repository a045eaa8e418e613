package validate_test

import (
	"testing"

	"github.com/ardanlabs/minernode/foundation/validate"
)

func Test_Check(t *testing.T) {
	type request struct {
		Transaction string `json:"transaction" validate:"required"`
	}

	if err := validate.Check(request{Transaction: "tx1"}); err != nil {
		t.Fatalf("Should be able to validate a good request: %s", err)
	}

	err := validate.Check(request{})
	if !validate.IsFieldErrors(err) {
		t.Fatalf("Should get back field errors for a bad request: %v", err)
	}

	fields := validate.GetFieldErrors(err).Fields()
	if _, exists := fields["transaction"]; !exists {
		t.Logf("got: %v", fields)
		t.Fatalf("Should report the json name of the failed field.")
	}
}

func Test_Var(t *testing.T) {
	if err := validate.Var("id", "tx1", "required,max=4"); err != nil {
		t.Fatalf("Should be able to validate a good value: %s", err)
	}

	err := validate.Var("id", "tx12345", "required,max=4")
	fe := validate.GetFieldErrors(err)
	if len(fe) != 1 || fe[0].Field != "id" {
		t.Logf("got: %v", err)
		t.Fatalf("Should get back a field error for the named value.")
	}
}
