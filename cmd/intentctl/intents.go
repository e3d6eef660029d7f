package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intentLedger/internal/balance"
	"intentLedger/internal/intent"
	"intentLedger/internal/model"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Lock available balance into a new intent",
		RunE:  runSubmit,
	}
	cmd.Flags().String("amount", "", "amount in whole token units")
	cmd.Flags().String("type", "BUY", "intent type (BUY or SELL)")
	cmd.Flags().String("symbol", "", "order symbol, e.g. ETH-20241108-2800C")
	cmd.Flags().String("option-type", "CALL", "option type (CALL or PUT)")
	cmd.Flags().String("quantity", "", "order quantity (integer)")
	cmd.Flags().String("price", "", "order price (integer, minor units)")
	cmd.Flags().String("expiry", "", "expiry as unix seconds")
	cmd.Flags().Uint64("intent-gas", 1500000, "gas limit of the submit transaction")
	for _, name := range []string{"amount", "symbol", "quantity", "price", "expiry"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSettleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle one intent (settlement owner only)",
		RunE:  runSettle,
	}
	cmd.Flags().String("user", "", "intent owner address")
	cmd.Flags().Uint64("index", 0, "intent index")
	cmd.Flags().String("pnl", "0", "signed PnL in whole token units")
	cmd.Flags().Uint64("settle-gas", 2000000, "gas limit of the settle transaction")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func newSettleBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle-batch",
		Short: "Settle every pending intent of the given users in one transaction",
		RunE:  runSettleBatch,
	}
	cmd.Flags().StringSlice("user", nil, "intent owner addresses (comma-separated)")
	cmd.Flags().String("pnl-buy", "5", "PnL applied to BUY intents, whole token units")
	cmd.Flags().String("pnl-sell", "-5", "PnL applied to every other intent, whole token units")
	cmd.Flags().Uint64("settle-gas", 2000000, "gas limit of the settle transaction")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMaxIntentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "max-intents",
		Short: "Read or set the per-user open intent cap",
		RunE:  runMaxIntents,
	}
	cmd.Flags().Uint64("set", 0, "new cap (intents owner only), 0 only reads")
	return cmd
}

func newIntentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intents",
		Short: "List intents with decoded metadata",
		RunE:  runIntents,
	}
	cmd.Flags().String("account", "", "account to list, defaults to the signing account")
	return cmd
}

func runSubmit(cmd *cobra.Command, _ []string) error {
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
	meta, err := metadataFromFlags(cmd)
	if err != nil {
		return err
	}
	intentType, _ := cmd.Flags().GetString("type")

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	res, err := mgr.Submit(ctx, amount, intentType, meta)
	if err != nil {
		fields := []zap.Field{zap.String("class", string(model.Classify(err))), zap.Error(err)}
		if res != nil {
			fields = append(fields, zap.String("tx", res.Tx.Hash.Hex()))
		}
		a.logger.Error("submit failed", fields...)
		return err
	}
	return printJSON(cmd, map[string]interface{}{
		"tx":        res.Tx.Hash.Hex(),
		"index":     res.Intent.Index,
		"amount":    balance.FormatUnits(res.Intent.Amount, a.cfg.Decimals),
		"available": balance.FormatUnits(res.Balance.Available, a.cfg.Decimals),
		"locked":    balance.FormatUnits(res.Balance.Locked, a.cfg.Decimals),
	})
}

func runSettle(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	rawUser, _ := cmd.Flags().GetString("user")
	user, err := parseAccount(rawUser)
	if err != nil {
		return err
	}
	index, _ := cmd.Flags().GetUint64("index")
	rawPnL, _ := cmd.Flags().GetString("pnl")
	pnl, err := a.parseAmount(rawPnL)
	if err != nil {
		return err
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	res, err := mgr.SettleOne(ctx, user, index, pnl)
	if err != nil {
		a.logger.Error("settle failed", zap.String("class", string(model.Classify(err))), zap.Error(err))
		return err
	}
	return printJSON(cmd, a.settled(res))
}

func runSettleBatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	rawUsers, _ := cmd.Flags().GetStringSlice("user")
	users := make([]common.Address, 0, len(rawUsers))
	for _, raw := range rawUsers {
		user, err := parseAccount(raw)
		if err != nil {
			return err
		}
		users = append(users, user)
	}
	rawBuy, _ := cmd.Flags().GetString("pnl-buy")
	buy, err := a.parseAmount(rawBuy)
	if err != nil {
		return err
	}
	rawSell, _ := cmd.Flags().GetString("pnl-sell")
	sell, err := a.parseAmount(rawSell)
	if err != nil {
		return err
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	batch, err := mgr.PendingBatch(ctx, users, intent.FixedPnL(buy, sell))
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		a.logger.Info("no pending intents", zap.Int("users", len(users)))
		return printJSON(cmd, map[string]interface{}{"settled": 0})
	}
	res, err := mgr.SettleBatch(ctx, batch)
	if err != nil {
		a.logger.Error("batch settle failed", zap.String("class", string(model.Classify(err))), zap.Error(err))
		return err
	}
	return printJSON(cmd, a.settled(res))
}

func runMaxIntents(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	newMax, _ := cmd.Flags().GetUint64("set")
	a, err := newApp(ctx, cmd, newMax > 0)
	if err != nil {
		return err
	}
	defer a.close()

	if newMax == 0 {
		current, err := a.ledger.MaxIntents(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"max_intents": current.String()})
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	ref, err := mgr.SetMaxIntents(ctx, new(big.Int).SetUint64(newMax))
	if err != nil {
		a.logger.Error("set max intents failed", zap.String("class", string(model.Classify(err))), zap.Error(err))
		return err
	}
	return printJSON(cmd, map[string]string{"tx": ref.Hash.Hex(), "max_intents": fmt.Sprint(newMax)})
}

func runIntents(cmd *cobra.Command, _ []string) error {
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
	listed, err := intent.ListIntents(ctx, a.ledger, account)
	if err != nil {
		return err
	}
	return printJSON(cmd, listed)
}

type settleOutput struct {
	Tx       string          `json:"tx"`
	Settled  int             `json:"settled"`
	Balances []balanceOutput `json:"balances"`
}

func (a *app) settled(res *intent.SettleResult) settleOutput {
	out := settleOutput{Tx: res.Tx.Hash.Hex(), Settled: res.Settled}
	for _, b := range res.Balances {
		out.Balances = append(out.Balances, a.balanceOutput(b))
	}
	return out
}

func metadataFromFlags(cmd *cobra.Command) (model.OrderMetadata, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	optionType, _ := cmd.Flags().GetString("option-type")
	meta := model.OrderMetadata{Symbol: symbol, OptionType: optionType}

	fields := []struct {
		name string
		dst  **big.Int
	}{
		{"quantity", &meta.Quantity},
		{"price", &meta.Price},
		{"expiry", &meta.Expiry},
	}
	for _, f := range fields {
		raw, _ := cmd.Flags().GetString(f.name)
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return model.OrderMetadata{}, fmt.Errorf("%w: %s %q", model.ErrMalformedMetadata, f.name, raw)
		}
		*f.dst = v
	}
	return meta, nil
}
