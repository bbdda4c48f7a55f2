package rpcclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/Klingon-tech/klingvault/config"
	klog "github.com/Klingon-tech/klingvault/internal/log"
	"github.com/Klingon-tech/klingvault/internal/rpc"
	"github.com/Klingon-tech/klingvault/internal/storage"
	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/Klingon-tech/klingvault/pkg/crypto"
)

const testChain = "klingvault-testnet-1"

type testEnv struct {
	client *Client
	admin  *crypto.PrivateKey
	vault  *vault.Vault
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	admin, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	db := storage.NewMemory()
	namespaces := map[string]string{"sUSD": config.StakeNamespace, "RWD": config.RewardNamespace}
	for sym, ns := range namespaces {
		meta := token.Metadata{Name: sym + " token", Symbol: sym, Decimals: 18}
		if _, err := token.Init(storage.NewPrefixDB(db, []byte(ns)), meta, admin.Address()); err != nil {
			t.Fatalf("init %s: %v", sym, err)
		}
	}
	open := func(ns string) vault.TokenOpener {
		return func(db storage.DB) vault.Token { return token.Open(storage.NewPrefixDB(db, []byte(ns))) }
	}
	v, err := vault.New(vault.Config{DB: db, Stake: open(config.StakeNamespace), Reward: open(config.RewardNamespace)})
	if err != nil {
		t.Fatal(err)
	}
	params := config.TestnetGenesis().Vault.Params()
	if err := v.Initialize(context.Background(), admin.Address(), params); err != nil {
		t.Fatal(err)
	}

	srv := rpc.New("127.0.0.1:0", rpc.Backend{ChainID: testChain, Vault: v, DB: db, Tokens: namespaces})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{client: New(ts.URL + "/"), admin: admin, vault: v}
}

func TestClient_Stats(t *testing.T) {
	env := setupTestEnv(t)

	stats, err := env.client.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.EmergencyFeeBps != 1000 || !stats.MinStake.Eq(config.Units(1)) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestClient_SendUsesNextNonce(t *testing.T) {
	env := setupTestEnv(t)
	to := env.admin.Address()

	for i := uint64(1); i <= 3; i++ {
		res, err := env.client.Send(env.admin, "token_mint", rpc.TokenArgs{Token: "sUSD", To: to, Amount: config.Units(10)})
		if err != nil {
			t.Fatalf("Send() #%d error: %v", i, err)
		}
		if res.Nonce != i {
			t.Errorf("nonce = %d, want %d", res.Nonce, i)
		}
	}

	bal, err := env.client.TokenBalance("sUSD", to)
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Eq(config.Units(30)) {
		t.Errorf("balance = %s, want 30", bal.Dec())
	}
	info, err := env.client.TokenInfo("sUSD")
	if err != nil || !info.TotalSupply.Eq(config.Units(30)) {
		t.Errorf("TokenInfo() = %+v, %v", info, err)
	}
}

func TestClient_PositionAndPending(t *testing.T) {
	env := setupTestEnv(t)
	a := env.admin.Address()

	pos, err := env.client.Position(a)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Exists {
		t.Error("admin should have no position")
	}
	p, err := env.client.PendingReward(a)
	if err != nil || !p.IsZero() {
		t.Errorf("PendingReward() = %v, %v", p, err)
	}
	evs, err := env.client.Events(1, 10)
	if err != nil || len(evs) == 0 || evs[0].Type != vault.EventInitialized {
		t.Errorf("Events() = %v, %v", evs, err)
	}
	rep, err := env.client.Audit()
	if err != nil || !rep.Consistent {
		t.Errorf("Audit() = %+v, %v", rep, err)
	}
}

func TestClient_RPCErrorCode(t *testing.T) {
	env := setupTestEnv(t)
	stranger, _ := crypto.GenerateKey()

	_, err := env.client.Send(stranger, "vault_pause", rpc.EmptyArgs{})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeUnauthorized {
		t.Errorf("code = %d, want %d", rpcErr.Code, rpc.CodeUnauthorized)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // nothing listens on port 1

	if _, err := client.Stats(); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("err = %v, want method not found", err)
	}
}

func TestClient_SendPinnedChain(t *testing.T) {
	env := setupTestEnv(t)
	to := env.admin.Address()

	env.client.SetChainID("klingvault-1")
	_, err := env.client.Send(env.admin, "token_mint", rpc.TokenArgs{Token: "sUSD", To: to, Amount: config.Units(1)})
	if !errors.Is(err, ErrWrongChain) {
		t.Fatalf("Send() on another chain = %v, want %v", err, ErrWrongChain)
	}

	env.client.SetChainID(testChain)
	if _, err := env.client.Send(env.admin, "token_mint", rpc.TokenArgs{Token: "sUSD", To: to, Amount: config.Units(1)}); err != nil {
		t.Fatalf("Send() on pinned chain: %v", err)
	}
	n, err := env.client.Nonce(to)
	if err != nil || n.ChainID != testChain || n.Nonce != 1 {
		t.Errorf("Nonce() = %+v, %v", n, err)
	}
}
