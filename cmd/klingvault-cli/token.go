package main

import (
	"flag"
	"fmt"

	"github.com/Klingon-tech/klingvault/internal/rpc"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

func cmdToken(e *env, args []string) {
	const use = "Usage: klingvault-cli token <info|balance|allowance|approve|transfer|mint> [flags]"
	if len(args) < 1 {
		fatal(use)
	}
	switch args[0] {
	case "info":
		if len(args) != 2 {
			fatal("Usage: klingvault-cli token info <symbol>")
		}
		info, err := e.client.TokenInfo(args[1])
		if err != nil {
			fatal("token_info: %v", err)
		}
		fmt.Printf("Name:         %s\n", info.Name)
		fmt.Printf("Symbol:       %s\n", info.Symbol)
		fmt.Printf("Decimals:     %d\n", info.Decimals)
		fmt.Printf("Total supply: %s\n", formatAmount(info.TotalSupply))
		if info.MaxSupply != nil && !info.MaxSupply.IsZero() {
			fmt.Printf("Max supply:   %s\n", formatAmount(info.MaxSupply))
		}
		fmt.Printf("Paused:       %v\n", info.Paused)
	case "balance":
		if len(args) != 3 {
			fatal("Usage: klingvault-cli token balance <symbol> <address>")
		}
		bal, err := e.client.TokenBalance(args[1], mustAddress(args[2]))
		if err != nil {
			fatal("token_balanceOf: %v", err)
		}
		fmt.Printf("%s %s\n", formatAmount(bal), args[1])
	case "allowance":
		if len(args) != 4 {
			fatal("Usage: klingvault-cli token allowance <symbol> <owner> <spender>")
		}
		var res rpc.TokenAmountResult
		if err := e.client.Call("token_allowance", rpc.TokenParam{
			Token:   args[1],
			Owner:   mustAddress(args[2]).String(),
			Spender: resolveSpender(e, args[3]).String(),
		}, &res); err != nil {
			fatal("token_allowance: %v", err)
		}
		fmt.Printf("%s %s\n", formatAmount(res.Amount), args[1])
	case "approve", "transfer", "mint":
		cmdTokenCall(e, args[0], args[1:])
	default:
		fatal("Unknown token command: %s\n%s", args[0], use)
	}
}

func cmdTokenCall(e *env, sub string, args []string) {
	fs := flag.NewFlagSet("token "+sub, flag.ExitOnError)
	sf := addSignerFlags(fs)
	symbol := fs.String("token", "", "Token symbol")
	to := fs.String("to", "", "Recipient address")
	spender := fs.String("spender", "", "Spender address, or \"vault\"")
	amountStr := fs.String("amount", "", "Amount")
	fs.Parse(args)

	if *symbol == "" || *amountStr == "" {
		fatal("Usage: klingvault-cli token %s --wallet <w> --token <symbol> --amount <amt> ...", sub)
	}
	ta := rpc.TokenArgs{Token: *symbol, Amount: mustAmount(*amountStr)}
	switch sub {
	case "approve":
		ta.Spender = resolveSpender(e, *spender)
	default:
		ta.To = mustAddress(*to)
	}
	printCall(send(e, sf, "token_"+sub, ta))
}

// resolveSpender accepts an address or the word "vault".
func resolveSpender(e *env, s string) types.Address {
	if s != "vault" {
		return mustAddress(s)
	}
	st, err := e.client.Stats()
	if err != nil {
		fatal("vault_getStats: %v", err)
	}
	return st.Address
}
