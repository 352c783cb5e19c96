// Command scenario replays the lottery acceptance scenario against an
// in-process dev chain: deploy, enter with 0.001 ether, check the balance
// delta and the stored entry, then settle the round.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/pterm/pterm"

	"lotteryledger/internal/chain"
	"lotteryledger/internal/models"
	"lotteryledger/internal/services"
)

const devAccounts = 10

func main() {
	pterm.DefaultHeader.WithFullWidth().Println("Lottery scenario")
	if err := run(context.Background()); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
	pterm.Success.Println("All checks passed")
}

func run(ctx context.Context) error {
	devChain := chain.New(chain.Config{GasPrice: big.NewInt(20000000000)})
	accounts := make([]*chain.Client, devAccounts)
	for i := range accounts {
		accounts[i] = chain.NewClient(devChain, chain.DevKey("lottery scenario", i))
		devChain.Fund(accounts[i].Address(), chain.MustParseEther("100"))
	}
	pterm.Info.Printfln("Dev chain up with %d funded accounts", len(accounts))

	owner := accounts[0]
	ledgerAddr, receipt, err := owner.Deploy(ctx, services.NewMemoryStore())
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if receipt.Status != 1 {
		return fmt.Errorf("deploy reverted: %s", receipt.Error)
	}
	pterm.Success.Printfln("Deployed ledger %s from %s", ledgerAddr, owner.Address())
	ledger, err := devChain.Ledger(ledgerAddr)
	if err != nil {
		return err
	}

	stake := chain.MustParseEther("0.001")
	oldBalance := owner.Balance()
	receipt, err = owner.Enter(ctx, ledgerAddr, "Shahrukh", stake)
	if err != nil {
		return fmt.Errorf("enter: %w", err)
	}
	if receipt.Status != 1 {
		return fmt.Errorf("enter reverted: %s", receipt.Error)
	}
	newBalance := owner.Balance()
	charged := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.GasPrice)
	spent := new(big.Int).Sub(oldBalance, newBalance)
	if want := new(big.Int).Add(charged, stake); spent.Cmp(want) != 0 {
		return fmt.Errorf("balance should drop by %s, dropped by %s", chain.FormatEther(want), chain.FormatEther(spent))
	}
	pterm.Success.Printfln("Balance dropped by fee %s + stake %s ether", chain.FormatEther(charged), chain.FormatEther(stake))

	first, err := ledger.GetEntry(ctx, 0)
	if err != nil {
		return fmt.Errorf("read entry 0: %w", err)
	}
	if first.UserAddress != owner.Address() || first.Name != "Shahrukh" || first.Amount.Cmp(stake) != 0 {
		return fmt.Errorf("entry 0 stored as %+v", first)
	}
	pterm.Success.Printfln("Entry 0 is {%s, %s, %s}", first.UserAddress, first.Name, chain.FormatEther(first.Amount))

	for i, name := range []string{"Alice", "Bob"} {
		r, err := accounts[i+1].Enter(ctx, ledgerAddr, name, chain.MustParseEther("0.01"))
		if err != nil || r.Status != 1 {
			return fmt.Errorf("enter %s: %v %s", name, err, r.Error)
		}
	}
	if err := printRound(ctx, ledger); err != nil {
		return err
	}

	receipt, err = owner.PickWinner(ctx, ledgerAddr)
	if err != nil {
		return fmt.Errorf("pick winner: %w", err)
	}
	if receipt.Status != 1 {
		return fmt.Errorf("pick winner reverted: %s", receipt.Error)
	}
	count, err := ledger.GetEntryCount(ctx)
	if err != nil {
		return err
	}
	if count != 0 {
		return fmt.Errorf("round should be empty after settlement, has %d entries", count)
	}
	if custody := devChain.Balance(ledgerAddr); custody.Sign() != 0 {
		return fmt.Errorf("custody should be empty after settlement, holds %s", custody)
	}
	s := receipt.Settlement
	pterm.Success.Printfln("Entry %d from %s won %s ether", s.Index, pterm.LightCyan(s.Winner.String()), chain.FormatEther(s.Amount))
	return nil
}

func printRound(ctx context.Context, ledger *services.LotteryLedger) error {
	count, err := ledger.GetEntryCount(ctx)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"#", "userAddress", "name", "amount (ether)"}}
	for i := 0; i < count; i++ {
		var e models.Entry
		if e, err = ledger.GetEntry(ctx, i); err != nil {
			return err
		}
		data = append(data, []string{strconv.Itoa(i), e.UserAddress.String(), e.Name, chain.FormatEther(e.Amount)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
