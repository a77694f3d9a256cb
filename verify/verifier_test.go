package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/replay"
)

const testTxSig = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"

// fakeClient serves canned RPC results keyed by signature / address.
type fakeClient struct {
	txs      map[string]*rpc.GetTransactionResult
	accounts map[string]*rpc.Account
	err      error
}

func (f *fakeClient) GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txs[signature.String()], nil
}

func (f *fakeClient) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[address.String()], nil
}

type tokenBalance struct {
	accountIndex uint16
	mint         string
	owner        string
	amount       string
}

// txFixture builds a GetTransactionResult through its JSON wire form, the
// same way an RPC response would arrive.
func txFixture(t *testing.T, keys []solana.PublicKey, blockTime int64, failed bool, pre, post []tokenBalance) *rpc.GetTransactionResult {
	t.Helper()

	tx := solana.Transaction{
		Signatures: []solana.Signature{{1}},
		Message: solana.Message{
			AccountKeys:     keys,
			RecentBlockhash: solana.Hash{2},
		},
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	balanceJSON := func(entries []tokenBalance) []map[string]any {
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{
				"accountIndex": e.accountIndex,
				"mint":         e.mint,
				"owner":        e.owner,
				"uiTokenAmount": map[string]any{
					"amount":   e.amount,
					"decimals": 6,
				},
			})
		}
		return out
	}

	var metaErr any
	if failed {
		metaErr = map[string]any{"InstructionError": []any{0, "Custom"}}
	}

	envelope := map[string]any{
		"slot":        250_000_000,
		"blockTime":   blockTime,
		"transaction": []any{base64.StdEncoding.EncodeToString(raw), "base64"},
		"meta": map[string]any{
			"err":               metaErr,
			"preTokenBalances":  balanceJSON(pre),
			"postTokenBalances": balanceJSON(post),
		},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatal(err)
	}

	var result rpc.GetTransactionResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	return &result
}

func testKeys(n int) []solana.PublicKey {
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = solana.PublicKeyFromBytes(bytes.Repeat([]byte{byte(i + 1)}, 32))
	}
	return keys
}

// paymentFixture wires up a verifier, a requirement, and a ledger holding a
// settlement transaction that satisfies it.
type paymentFixture struct {
	verifier    *Verifier
	cache       *replay.MemoryCache
	client      *fakeClient
	requirement x402.PaymentRequirement
	now         time.Time
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	keys := testKeys(4)
	now := time.Unix(1_724_500_000, 0)

	f := &paymentFixture{
		client: &fakeClient{txs: map[string]*rpc.GetTransactionResult{}},
		cache:  replay.NewMemoryCache(time.Hour),
		now:    now,
		requirement: x402.PaymentRequirement{
			Scheme:            x402.SchemeExact,
			Network:           x402.NetworkSolanaDevnet,
			MaxAmountRequired: "10000",
			Asset:             x402.SolanaDevnet.USDCMint,
			PayTo:             keys[2].String(),
			Resource:          "https://api.example.com/premium",
			MaxTimeoutSeconds: 300,
		},
	}
	t.Cleanup(func() { f.cache.Close() })

	mint := x402.SolanaDevnet.USDCMint
	f.client.txs[testTxSig] = txFixture(t, keys, now.Unix()-30, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "500000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "490000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "10000"},
		})

	f.verifier = NewVerifier(f.client, f.cache, Options{})
	f.verifier.now = func() time.Time { return f.now }
	return f
}

func (f *paymentFixture) verify(t *testing.T) *x402.VerificationResult {
	t.Helper()
	return f.verifier.VerifyTransfer(context.Background(),
		x402.ExactPayload{Signature: testTxSig}, f.requirement, f.requirement.Resource)
}

func TestVerifyTransfer_Valid(t *testing.T) {
	f := newPaymentFixture(t)

	result := f.verify(t)
	if !result.Valid {
		t.Fatalf("result = %+v, want valid", result)
	}
	if result.Transfer == nil || result.Transfer.Amount != 10000 {
		t.Errorf("Transfer = %+v, want amount 10000", result.Transfer)
	}
	if result.Signature != testTxSig {
		t.Errorf("Signature = %q", result.Signature)
	}
	if result.Slot != 250_000_000 {
		t.Errorf("Slot = %d", result.Slot)
	}

	meta, err := f.cache.Peek(context.Background(), testTxSig)
	if err != nil || meta == nil {
		t.Fatalf("signature should be consumed after success, meta=%v err=%v", meta, err)
	}
	if meta.Resource != f.requirement.Resource {
		t.Errorf("consumed resource = %q", meta.Resource)
	}
}

func TestVerifyTransfer_Replay(t *testing.T) {
	f := newPaymentFixture(t)

	if result := f.verify(t); !result.Valid {
		t.Fatalf("first verification should pass: %+v", result)
	}
	result := f.verify(t)
	if result.Valid {
		t.Fatal("second verification must fail")
	}
	if result.ErrorKind != x402.KindReplayAttack {
		t.Errorf("kind = %q, want ReplayAttack", result.ErrorKind)
	}
}

func TestVerifyTransfer_TxNotFound(t *testing.T) {
	f := newPaymentFixture(t)
	delete(f.client.txs, testTxSig)

	result := f.verify(t)
	if result.Valid || result.ErrorKind != x402.KindTxNotFound {
		t.Errorf("result = %+v, want TxNotFound", result)
	}

	// A proof that never verified must not occupy the replay window.
	if meta, _ := f.cache.Peek(context.Background(), testTxSig); meta != nil {
		t.Error("rejected proof must not be consumed")
	}
}

func TestVerifyTransfer_TxFailed(t *testing.T) {
	f := newPaymentFixture(t)
	keys := testKeys(4)
	f.client.txs[testTxSig] = txFixture(t, keys, f.now.Unix()-30, true, nil, nil)

	result := f.verify(t)
	if result.Valid || result.ErrorKind != x402.KindTxFailed {
		t.Errorf("result = %+v, want TxFailed", result)
	}
}

func TestVerifyTransfer_NoTokenTransfer(t *testing.T) {
	f := newPaymentFixture(t)
	keys := testKeys(4)
	wrongMint := "So11111111111111111111111111111111111111112"
	f.client.txs[testTxSig] = txFixture(t, keys, f.now.Unix()-30, false,
		[]tokenBalance{
			{accountIndex: 1, mint: wrongMint, owner: keys[0].String(), amount: "500000"},
			{accountIndex: 2, mint: wrongMint, owner: keys[3].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: wrongMint, owner: keys[0].String(), amount: "490000"},
			{accountIndex: 2, mint: wrongMint, owner: keys[3].String(), amount: "10000"},
		})

	result := f.verify(t)
	if result.Valid || result.ErrorKind != x402.KindNoTokenTransfer {
		t.Errorf("result = %+v, want NoTokenTransfer", result)
	}
}

func TestVerifyTransfer_TransferMismatch(t *testing.T) {
	t.Run("wrong destination", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.requirement.PayTo = testKeys(5)[4].String()

		result := f.verify(t)
		if result.Valid || result.ErrorKind != x402.KindTransferMismatch {
			t.Fatalf("result = %+v, want TransferMismatch", result)
		}
		if result.Debug == nil {
			t.Error("mismatch should carry debug context")
		}
	})

	t.Run("insufficient amount", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.requirement.MaxAmountRequired = "20000"

		result := f.verify(t)
		if result.Valid || result.ErrorKind != x402.KindTransferMismatch {
			t.Fatalf("result = %+v, want TransferMismatch", result)
		}
		if result.Debug["foundAmount"] != "10000" {
			t.Errorf("Debug = %+v, want foundAmount 10000", result.Debug)
		}
	})

	t.Run("exact amount passes", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.requirement.MaxAmountRequired = "10000"

		if result := f.verify(t); !result.Valid {
			t.Errorf("transfer equal to the requirement should pass: %+v", result)
		}
	})
}

func TestVerifyTransfer_SelfTransferIgnored(t *testing.T) {
	f := newPaymentFixture(t)
	keys := testKeys(4)
	keys[2] = keys[1] // credit and debit land on the same account
	mint := x402.SolanaDevnet.USDCMint
	f.requirement.PayTo = keys[1].String()
	f.client.txs[testTxSig] = txFixture(t, keys, f.now.Unix()-30, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "500000"},
			{accountIndex: 2, mint: mint, owner: keys[0].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "490000"},
			{accountIndex: 2, mint: mint, owner: keys[0].String(), amount: "10000"},
		})

	result := f.verify(t)
	if result.Valid {
		t.Fatal("a self transfer moves no value and must not pass")
	}
	if result.ErrorKind != x402.KindTransferMismatch {
		t.Errorf("kind = %q, want TransferMismatch", result.ErrorKind)
	}
}

func TestVerifyTransfer_Expired(t *testing.T) {
	f := newPaymentFixture(t)
	keys := testKeys(4)
	mint := x402.SolanaDevnet.USDCMint
	f.client.txs[testTxSig] = txFixture(t, keys, f.now.Unix()-301, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "500000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "490000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "10000"},
		})

	result := f.verify(t)
	if result.Valid || result.ErrorKind != x402.KindTxExpired {
		t.Errorf("result = %+v, want TxExpired", result)
	}

	// Within the window it passes.
	f2 := newPaymentFixture(t)
	f2.client.txs[testTxSig] = txFixture(t, keys, f2.now.Unix()-299, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "500000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "490000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "10000"},
		})
	if result := f2.verify(t); !result.Valid {
		t.Errorf("transaction inside the window should pass: %+v", result)
	}
}

func TestVerifyTransfer_RpcError(t *testing.T) {
	f := newPaymentFixture(t)
	f.client.err = errors.New("connection refused")

	result := f.verify(t)
	if result.Valid || result.ErrorKind != x402.KindRpcError {
		t.Errorf("result = %+v, want RpcError", result)
	}
	if !result.ErrorKind.Retriable() {
		t.Error("RpcError should be retriable")
	}
}

func TestVerifyTransfer_MalformedSignature(t *testing.T) {
	f := newPaymentFixture(t)

	result := f.verifier.VerifyTransfer(context.Background(),
		x402.ExactPayload{Signature: "not-a-signature"}, f.requirement, "")
	if result.Valid || result.ErrorKind != x402.KindInvalidHeader {
		t.Errorf("result = %+v, want InvalidHeader", result)
	}
}

func TestVerifyProof_Routing(t *testing.T) {
	f := newPaymentFixture(t)

	t.Run("unsupported scheme", func(t *testing.T) {
		payment := x402.PaymentPayload{
			X402Version: 1,
			Scheme:      "subscription",
			Network:     x402.NetworkSolanaDevnet,
			Payload:     []byte(`{}`),
		}
		result := f.verifier.VerifyProof(context.Background(), payment, f.requirement, "")
		if result.ErrorKind != x402.KindUnsupportedScheme {
			t.Errorf("kind = %q, want UnsupportedScheme", result.ErrorKind)
		}
	})

	t.Run("unsupported network", func(t *testing.T) {
		payment := x402.NewExactPayment("base-sepolia", testTxSig)
		result := f.verifier.VerifyProof(context.Background(), payment, f.requirement, "")
		if result.ErrorKind != x402.KindUnsupportedNetwork {
			t.Errorf("kind = %q, want UnsupportedNetwork", result.ErrorKind)
		}
	})

	t.Run("exact routes to transfer verification", func(t *testing.T) {
		payment := x402.NewExactPayment(x402.NetworkSolanaDevnet, testTxSig)
		result := f.verifier.VerifyProof(context.Background(), payment, f.requirement, f.requirement.Resource)
		if !result.Valid {
			t.Errorf("result = %+v, want valid", result)
		}
	})
}

func TestVerifyTransfer_SkipReplayCheck(t *testing.T) {
	f := newPaymentFixture(t)
	f.verifier = NewVerifier(f.client, nil, Options{SkipReplayCheck: true})
	f.verifier.now = func() time.Time { return f.now }

	for i := 0; i < 2; i++ {
		if result := f.verify(t); !result.Valid {
			t.Fatalf("verification %d should pass with replay checking off: %+v", i, result)
		}
	}
}
