package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intentLedger/internal/balance"
	"intentLedger/internal/deposit"
	"intentLedger/internal/model"
)

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit tokens into the ledger with a signed permit",
		RunE:  runDeposit,
	}
	cmd.Flags().String("amount", "", "amount in whole token units (e.g. 1.5)")
	cmd.Flags().Duration("deadline", time.Hour, "permit validity from now")
	cmd.Flags().Uint64("deposit-gas", 500000, "gas limit of the deposit transaction")
	cmd.Flags().Uint64("approve-gas", 0, "gas limit of the approval transaction, 0 estimates")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw available balance from the ledger",
		RunE:  runWithdraw,
	}
	cmd.Flags().String("amount", "", "amount in whole token units")
	cmd.Flags().Uint64("withdraw-gas", 500000, "gas limit of the withdraw transaction")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runDeposit(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	raw, _ := cmd.Flags().GetString("amount")
	amount, err := a.parseAmount(raw)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	deadline := uint64(time.Now().Add(a.cfg.Deadline).Unix())
	res, err := orch.Deposit(ctx, amount, deadline)
	if err != nil {
		a.logger.Error("deposit failed", zap.String("class", string(model.Classify(err))), zap.Error(err))
		return err
	}
	return printJSON(cmd, a.movement(res))
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	raw, _ := cmd.Flags().GetString("amount")
	amount, err := a.parseAmount(raw)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	res, err := orch.Withdraw(ctx, amount)
	if err != nil {
		a.logger.Error("withdraw failed", zap.String("class", string(model.Classify(err))), zap.Error(err))
		return err
	}
	return printJSON(cmd, a.movement(res))
}

type movementOutput struct {
	Tx              string `json:"tx"`
	Approval        string `json:"approval,omitempty"`
	Nonce           string `json:"nonce,omitempty"`
	AvailableBefore string `json:"available_before"`
	AvailableAfter  string `json:"available_after"`
	LockedAfter     string `json:"locked_after"`
	DryRunError     string `json:"dry_run_error,omitempty"`
}

func (a *app) movement(res *deposit.Result) movementOutput {
	out := movementOutput{
		Tx:              res.Tx.Hash.Hex(),
		AvailableBefore: balance.FormatUnits(res.Before.Available, a.cfg.Decimals),
		AvailableAfter:  balance.FormatUnits(res.After.Available, a.cfg.Decimals),
		LockedAfter:     balance.FormatUnits(res.After.Locked, a.cfg.Decimals),
	}
	if res.Approval != nil {
		out.Approval = res.Approval.Hash.Hex()
	}
	if res.Nonce != nil {
		out.Nonce = res.Nonce.String()
	}
	if res.DryRunErr != nil {
		out.DryRunError = fmt.Sprint(res.DryRunErr)
	}
	return out
}
