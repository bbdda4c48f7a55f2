package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/Klingon-tech/klingvault/internal/rpc"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

// send signs and submits one call, exiting on error.
func send(e *env, sf signerFlags, method string, args interface{}) *rpc.CallResult {
	key := sf.key(e)
	defer key.Zero()
	res, err := e.client.Send(key, method, args)
	if err != nil {
		fatal("%s: %v", method, err)
	}
	return res
}

func printCall(res *rpc.CallResult) {
	fmt.Printf("%s committed\n", res.Method)
	fmt.Printf("  From:   %s\n", res.From)
	fmt.Printf("  Nonce:  %d\n", res.Nonce)
	if res.Amount != nil {
		fmt.Printf("  Amount: %s\n", formatAmount(res.Amount))
	}
	if res.Reward != nil {
		fmt.Printf("  Reward: %s\n", formatAmount(res.Reward))
	}
	if res.Fee != nil {
		fmt.Printf("  Fee:    %s\n", formatAmount(res.Fee))
	}
	if res.Payout != nil {
		fmt.Printf("  Payout: %s\n", formatAmount(res.Payout))
	}
}

func cmdVault(e *env, args []string) {
	const use = "Usage: klingvault-cli vault <stats|position|pending|events|audit|deposit|withdraw|claim|exit|emergency-withdraw> [flags]"
	if len(args) < 1 {
		fatal(use)
	}
	switch args[0] {
	case "stats":
		cmdVaultStats(e)
	case "position":
		cmdVaultPosition(e, args[1:])
	case "pending":
		cmdVaultPending(e, args[1:])
	case "events":
		cmdVaultEvents(e, args[1:])
	case "audit":
		rep, err := e.client.Audit()
		if err != nil {
			fatal("vault_audit: %v", err)
		}
		printJSON(rep)
	case "deposit":
		cmdVaultDeposit(e, args[1:])
	case "withdraw":
		cmdVaultAmountCall(e, "vault withdraw", "vault_withdraw", args[1:])
	case "claim":
		cmdVaultSimpleCall(e, "vault claim", "vault_claim", args[1:])
	case "exit":
		cmdVaultSimpleCall(e, "vault exit", "vault_exit", args[1:])
	case "emergency-withdraw":
		cmdVaultSimpleCall(e, "vault emergency-withdraw", "vault_emergencyWithdraw", args[1:])
	default:
		fatal("Unknown vault command: %s\n%s", args[0], use)
	}
}

func cmdVaultStats(e *env) {
	s, err := e.client.Stats()
	if err != nil {
		fatal("vault_getStats: %v", err)
	}
	fmt.Printf("Vault:           %s\n", s.Address)
	fmt.Printf("Paused:          %v\n", s.Paused)
	fmt.Printf("Total staked:    %s\n", formatAmount(s.TotalStaked))
	fmt.Printf("Reward rate:     %s /s\n", formatAmount(s.RewardRate))
	fmt.Printf("Reward end:      %s\n", formatTime(s.RewardEndTime))
	fmt.Printf("Last update:     %s\n", formatTime(s.LastUpdateTime))
	fmt.Printf("Lock period:     %s\n", time.Duration(s.LockPeriod)*time.Second)
	fmt.Printf("Stake limits:    %s .. %s\n", formatAmount(s.MinStake), formatAmount(s.MaxStake))
	fmt.Printf("Emergency fee:   %d bps\n", s.EmergencyFeeBps)
	fmt.Printf("Collected fees:  %s\n", formatAmount(s.CollectedFees))
	fmt.Printf("Stake custody:   %s\n", formatAmount(s.StakeCustody))
	fmt.Printf("Reward custody:  %s\n", formatAmount(s.RewardCustody))
	fmt.Printf("Events:          %d\n", s.EventSeq)
}

func formatTime(unix uint64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(int64(unix), 0).UTC().Format(time.RFC3339)
}

func cmdVaultPosition(e *env, args []string) {
	if len(args) != 1 {
		fatal("Usage: klingvault-cli vault position <address>")
	}
	p, err := e.client.Position(mustAddress(args[0]))
	if err != nil {
		fatal("vault_getPosition: %v", err)
	}
	if !p.Exists {
		fmt.Println("No position.")
		return
	}
	fmt.Printf("Staked:     %s\n", formatAmount(p.Amount))
	fmt.Printf("Pending:    %s\n", formatAmount(p.PendingReward))
	fmt.Printf("Unlocks at: %s (locked: %v)\n", formatTime(p.UnlockTime), p.Locked)
}

func cmdVaultPending(e *env, args []string) {
	if len(args) != 1 {
		fatal("Usage: klingvault-cli vault pending <address>")
	}
	v, err := e.client.PendingReward(mustAddress(args[0]))
	if err != nil {
		fatal("vault_pendingReward: %v", err)
	}
	fmt.Println(formatAmount(v))
}

func cmdVaultEvents(e *env, args []string) {
	fs := flag.NewFlagSet("vault events", flag.ExitOnError)
	from := fs.Uint64("from", 1, "First sequence number")
	limit := fs.Int("limit", 20, "Maximum events")
	fs.Parse(args)

	events, err := e.client.Events(*from, *limit)
	if err != nil {
		fatal("vault_events: %v", err)
	}
	for _, ev := range events {
		line := fmt.Sprintf("#%-5d %s  %-20s %s", ev.Seq, formatTime(ev.Time), ev.Type, ev.Caller)
		if ev.Amount != nil {
			line += " amount=" + formatAmount(ev.Amount)
		}
		if ev.Reward != nil {
			line += " reward=" + formatAmount(ev.Reward)
		}
		if ev.Fee != nil {
			line += " fee=" + formatAmount(ev.Fee)
		}
		fmt.Println(line)
	}
}

func cmdVaultDeposit(e *env, args []string) {
	fs := flag.NewFlagSet("vault deposit", flag.ExitOnError)
	sf := addSignerFlags(fs)
	amountStr := fs.String("amount", "", "Amount to stake")
	approve := fs.Bool("approve", false, "Approve the vault for the amount first")
	stakeToken := fs.String("token", "sUSD", "Stake token symbol (for --approve)")
	fs.Parse(args)

	if *amountStr == "" {
		fatal("Usage: klingvault-cli vault deposit --wallet <w> --amount <amt> [--approve]")
	}
	amount := mustAmount(*amountStr)
	key := sf.key(e)
	defer key.Zero()

	if *approve {
		s, err := e.client.Stats()
		if err != nil {
			fatal("vault_getStats: %v", err)
		}
		if _, err := e.client.Send(key, "token_approve", rpc.TokenArgs{Token: *stakeToken, Spender: s.Address, Amount: amount}); err != nil {
			fatal("token_approve: %v", err)
		}
		fmt.Printf("Approved %s %s for %s\n", formatAmount(amount), *stakeToken, s.Address)
	}
	res, err := e.client.Send(key, "vault_deposit", rpc.AmountArgs{Amount: amount})
	if err != nil {
		fatal("vault_deposit: %v", err)
	}
	printCall(res)
}

func cmdVaultAmountCall(e *env, name, method string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	sf := addSignerFlags(fs)
	amountStr := fs.String("amount", "", "Amount")
	fs.Parse(args)

	if *amountStr == "" {
		fatal("Usage: klingvault-cli %s --wallet <w> --amount <amt>", name)
	}
	printCall(send(e, sf, method, rpc.AmountArgs{Amount: mustAmount(*amountStr)}))
}

func cmdVaultSimpleCall(e *env, name, method string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	sf := addSignerFlags(fs)
	fs.Parse(args)
	printCall(send(e, sf, method, rpc.EmptyArgs{}))
}

// ── admin ───────────────────────────────────────────────────────────────

func cmdAdmin(e *env, args []string) {
	const use = "Usage: klingvault-cli admin <fund|set-rate|set-lock|set-limits|set-fee|pause|unpause|grant|revoke|roles|collect-fees> [flags]"
	if len(args) < 1 {
		fatal(use)
	}
	fs := flag.NewFlagSet("admin "+args[0], flag.ExitOnError)
	sf := addSignerFlags(fs)

	switch args[0] {
	case "fund":
		amount := fs.String("amount", "", "Reward amount")
		duration := fs.Uint64("duration", 0, "Emission period in seconds")
		fs.Parse(args[1:])
		printCall(send(e, sf, "vault_fundRewards", rpc.FundArgs{Amount: mustAmount(*amount), Duration: *duration}))
	case "set-rate":
		rate := fs.String("rate", "", "Reward per second")
		duration := fs.Uint64("duration", 0, "Emission period in seconds")
		fs.Parse(args[1:])
		printCall(send(e, sf, "vault_setRewardRate", rpc.RateArgs{Rate: mustAmount(*rate), Duration: *duration}))
	case "set-lock":
		seconds := fs.Uint64("seconds", 0, "Lock period in seconds")
		fs.Parse(args[1:])
		printCall(send(e, sf, "vault_setLockPeriod", rpc.LockArgs{Seconds: *seconds}))
	case "set-limits":
		minStake := fs.String("min", "", "Minimum deposit")
		maxStake := fs.String("max", "", "Pool-wide stake cap")
		fs.Parse(args[1:])
		printCall(send(e, sf, "vault_setStakeLimits", rpc.LimitsArgs{MinStake: mustAmount(*minStake), MaxStake: mustAmount(*maxStake)}))
	case "set-fee":
		bps := fs.String("bps", "", "Emergency fee in basis points")
		fs.Parse(args[1:])
		n, err := strconv.ParseUint(*bps, 10, 16)
		if err != nil {
			fatal("invalid --bps: %v", err)
		}
		printCall(send(e, sf, "vault_setEmergencyFee", rpc.FeeArgs{FeeBps: uint16(n)}))
	case "pause", "unpause":
		fs.Parse(args[1:])
		printCall(send(e, sf, "vault_"+args[0], rpc.EmptyArgs{}))
	case "grant", "revoke":
		role := fs.String("role", "", "admin, pauser or treasurer")
		account := fs.String("account", "", "Account address")
		fs.Parse(args[1:])
		method := "vault_grantRole"
		if args[0] == "revoke" {
			method = "vault_revokeRole"
		}
		printCall(send(e, sf, method, rpc.RoleArgs{Role: *role, Account: mustAddress(*account)}))
	case "roles":
		if len(args) != 2 {
			fatal("Usage: klingvault-cli admin roles <role>")
		}
		var res rpc.RoleMembersResult
		if err := e.client.Call("vault_roleMembers", rpc.RoleParam{Role: args[1]}, &res); err != nil {
			fatal("vault_roleMembers: %v", err)
		}
		for _, m := range res.Members {
			fmt.Println(m)
		}
	case "collect-fees":
		to := fs.String("to", "", "Recipient address")
		fs.Parse(args[1:])
		var addr types.Address
		if *to != "" {
			addr = mustAddress(*to)
		}
		printCall(send(e, sf, "vault_collectFees", rpc.CollectArgs{To: addr}))
	default:
		fatal("Unknown admin command: %s\n%s", args[0], use)
	}
}
