package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/service"
)

type greeksFlags struct {
	contract   string
	underlying string
	strike     float64
	expiry     string
	right      string
	style      string
	multiplier int
	spot       float64
	vol        float64
	price      float64
	date       string
}

func newGreeksCmd(opts *rootOptions) *cobra.Command {
	f := &greeksFlags{}
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "compute the full greeks set of one contract and print it as JSON",
		Example: `  greeksd greeks --underlying SPY --strike 500 --expiry 2024-06-21 --right call --spot 505 --vol 0.18
  greeksd greeks --underlying SPY --strike 500 --expiry 2024-06-21 --right put --style american --spot 505 --price 7.35`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGreeks(cmd, opts, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.contract, "contract", "", "contract id; derived from the terms when empty")
	fl.StringVar(&f.underlying, "underlying", "", "underlying symbol")
	fl.Float64Var(&f.strike, "strike", 0, "strike price")
	fl.StringVar(&f.expiry, "expiry", "", "expiry date YYYY-MM-DD")
	fl.StringVar(&f.right, "right", "call", "call or put")
	fl.StringVar(&f.style, "style", "european", "european or american")
	fl.IntVar(&f.multiplier, "multiplier", pricing.DefaultMultiplier, "contract multiplier")
	fl.Float64Var(&f.spot, "spot", 0, "underlying price")
	fl.Float64Var(&f.vol, "vol", 0, "volatility; solved from --price when zero")
	fl.Float64Var(&f.price, "price", 0, "option market price used to solve the implied volatility")
	fl.StringVar(&f.date, "date", "", "valuation date YYYY-MM-DD; today when empty")
	_ = cmd.MarkFlagRequired("underlying")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("expiry")
	_ = cmd.MarkFlagRequired("spot")
	return cmd
}

func runGreeks(cmd *cobra.Command, opts *rootOptions, f *greeksFlags) error {
	ctx := cmd.Context()
	terms, err := f.terms()
	if err != nil {
		return err
	}
	asOf, err := parseAsOf(f.date)
	if err != nil {
		return err
	}

	svc := service.New(opts.cfg, asOf, service.Deps{Logger: logging.Default()})
	if err := svc.RegisterContract(ctx, terms); err != nil {
		return err
	}

	vol := f.vol
	if vol == 0 && f.price > 0 {
		vol, err = svc.IV(ctx, service.IVRequest{ContractID: terms.ContractID, Price: f.price, Spot: f.spot})
		if err != nil {
			return err
		}
	}
	g, err := svc.Greeks(ctx, service.GreeksRequest{ContractID: terms.ContractID, Spot: f.spot, Vol: vol})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

func (f *greeksFlags) terms() (pricing.ContractTerms, error) {
	expiry, err := datetime.ParseDate(f.expiry)
	if err != nil {
		return pricing.ContractTerms{}, err
	}
	right, err := pricing.ParseRight(f.right)
	if err != nil {
		return pricing.ContractTerms{}, err
	}
	style, err := pricing.ParseStyle(f.style)
	if err != nil {
		return pricing.ContractTerms{}, err
	}
	t := pricing.ContractTerms{
		ContractID: f.contract,
		Underlying: f.underlying,
		Strike:     f.strike,
		Expiry:     expiry,
		Right:      right,
		Style:      style,
		Multiplier: f.multiplier,
	}
	if t.ContractID == "" {
		t.ContractID = pricing.OCCSymbol(t)
	}
	return t, nil
}

// parseAsOf 解析估值日，空串取当天（UTC）。
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return datetime.DateOnly(time.Now().UTC()), nil
	}
	return datetime.ParseDate(s)
}
