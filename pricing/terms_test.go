package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

func TestOCCSymbol(t *testing.T) {
	tests := []struct {
		terms ContractTerms
		want  string
	}{
		{ContractTerms{Underlying: "spy", Strike: 100, Expiry: datetime.Date(2024, time.July, 1), Right: Call}, "SPY240701C00100000"},
		{ContractTerms{Underlying: "SPY", Strike: 502.5, Expiry: datetime.Date(2024, time.June, 21), Right: Put}, "SPY240621P00502500"},
	}
	for _, tt := range tests {
		if got := OCCSymbol(tt.terms); got != tt.want {
			t.Errorf("OCCSymbol = %q, want %q", got, tt.want)
		}
	}
}

func TestTermsValidate(t *testing.T) {
	ok := ContractTerms{ContractID: "X", Underlying: "SPY", Strike: 100, Expiry: time.Date(2024, 7, 1, 16, 0, 0, 0, time.UTC)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok.Multiplier != DefaultMultiplier {
		t.Errorf("Multiplier = %d, want default", ok.Multiplier)
	}
	if !ok.Expiry.Equal(datetime.Date(2024, time.July, 1)) {
		t.Errorf("Expiry not truncated: %v", ok.Expiry)
	}

	bad := []ContractTerms{
		{Underlying: "SPY", Strike: 100, Expiry: ok.Expiry},
		{ContractID: "X", Strike: 100, Expiry: ok.Expiry},
		{ContractID: "X", Underlying: "SPY", Strike: 0, Expiry: ok.Expiry},
		{ContractID: "X", Underlying: "SPY", Strike: 100},
		{ContractID: "X", Underlying: "SPY", Strike: 100, Expiry: ok.Expiry, Right: Right(7)},
	}
	for i, b := range bad {
		if err := b.Validate(); !errors.Is(err, xerrors.ErrInvalidContract) {
			t.Errorf("case %d: err = %v, want ErrInvalidContract", i, err)
		}
	}
}
