package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"intentLedger/internal/balance"
	"intentLedger/internal/intent"
	"intentLedger/internal/model"
)

func newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show ledger and wallet token balances",
		RunE:  runBalance,
	}
	cmd.Flags().String("account", "", "account to read, defaults to the signing account")
	return cmd
}

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Encode or decode intent order metadata",
	}

	encode := &cobra.Command{
		Use:   "encode",
		Short: "ABI-encode order metadata to hex",
		RunE: func(cmd *cobra.Command, _ []string) error {
			meta, err := metadataFromFlags(cmd)
			if err != nil {
				return err
			}
			encoded, err := intent.EncodeMetadata(meta)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(encoded))
			return nil
		},
	}
	encode.Flags().String("symbol", "", "order symbol")
	encode.Flags().String("option-type", "CALL", "option type")
	encode.Flags().String("quantity", "0", "order quantity")
	encode.Flags().String("price", "0", "order price")
	encode.Flags().String("expiry", "0", "expiry as unix seconds")

	decode := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode hex order metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hexutil.Decode(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", model.ErrMalformedMetadata, err)
			}
			meta, err := intent.DecodeMetadata(raw)
			if err != nil {
				return err
			}
			return printJSON(cmd, meta)
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func runBalance(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	rawAccount, _ := cmd.Flags().GetString("account")
	a, err := newApp(ctx, cmd, rawAccount == "")
	if err != nil {
		return err
	}
	defer a.close()

	account, err := a.targetAccount(rawAccount)
	if err != nil {
		return err
	}
	b, err := a.view.Refresh(ctx, account)
	if err != nil {
		return err
	}
	out := a.balanceOutput(b)
	wallet, err := a.view.TokenBalance(ctx, account)
	if err != nil {
		return err
	}
	out.Wallet = balance.FormatUnits(wallet, a.cfg.Decimals)
	return printJSON(cmd, out)
}

type balanceOutput struct {
	Account     string    `json:"account"`
	Available   string    `json:"available"`
	Locked      string    `json:"locked"`
	Total       string    `json:"total"`
	Wallet      string    `json:"wallet,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

func (a *app) balanceOutput(b model.Balance) balanceOutput {
	return balanceOutput{
		Account:     b.Account.Hex(),
		Available:   balance.FormatUnits(b.Available, a.cfg.Decimals),
		Locked:      balance.FormatUnits(b.Locked, a.cfg.Decimals),
		Total:       balance.FormatUnits(b.Total(), a.cfg.Decimals),
		RefreshedAt: b.RefreshedAt,
	}
}

// targetAccount returns the explicit account, or the signing account when
// none was given.
func (a *app) targetAccount(raw string) (common.Address, error) {
	if raw != "" {
		return parseAccount(raw)
	}
	if a.wallet == nil {
		return common.Address{}, fmt.Errorf("account is required")
	}
	return a.wallet.Address(), nil
}

