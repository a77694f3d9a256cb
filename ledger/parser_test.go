package ledger

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/paylith/x402-solana"
)

// tokenBalance is the JSON shape of one pre/post token balance entry.
type tokenBalance struct {
	accountIndex uint16
	mint         string
	owner        string
	amount       string
}

// txFixture builds a GetTransactionResult the way the RPC would return it:
// a base64 transaction envelope plus JSON meta. Going through JSON keeps the
// fixture honest about the wire format.
func txFixture(t *testing.T, keys []solana.PublicKey, failed bool, pre, post []tokenBalance) *rpc.GetTransactionResult {
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
		t.Fatalf("marshal fixture transaction: %v", err)
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
		"blockTime":   1_724_500_000,
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
		t.Fatalf("unmarshal fixture: %v", err)
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

func TestParseTransfers_SingleTransfer(t *testing.T) {
	keys := testKeys(4)
	mint := x402.SolanaDevnet.USDCMint
	payer := keys[0].String()

	result := txFixture(t, keys, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: payer, amount: "500000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: payer, amount: "490000"},
			{accountIndex: 2, mint: mint, owner: keys[3].String(), amount: "10000"},
		})

	out, err := ParseTransfers(result)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if out.Status != ParseOK {
		t.Fatalf("Status = %v, want ParseOK", out.Status)
	}
	if out.BlockTime != 1_724_500_000 {
		t.Errorf("BlockTime = %d, want 1724500000", out.BlockTime)
	}
	if out.Slot != 250_000_000 {
		t.Errorf("Slot = %d, want 250000000", out.Slot)
	}
	if len(out.Transfers) != 1 {
		t.Fatalf("got %d transfers, want 1", len(out.Transfers))
	}

	transfer := out.Transfers[0]
	if transfer.Source != keys[1].String() {
		t.Errorf("Source = %s, want %s", transfer.Source, keys[1])
	}
	if transfer.Destination != keys[2].String() {
		t.Errorf("Destination = %s, want %s", transfer.Destination, keys[2])
	}
	if transfer.Authority != payer {
		t.Errorf("Authority = %s, want %s", transfer.Authority, payer)
	}
	if transfer.Amount != 10000 {
		t.Errorf("Amount = %d, want 10000", transfer.Amount)
	}
	if transfer.Mint != mint {
		t.Errorf("Mint = %s, want %s", transfer.Mint, mint)
	}
}

func TestParseTransfers_MultiTransfer(t *testing.T) {
	keys := testKeys(6)
	usdc := x402.SolanaDevnet.USDCMint
	other := "So11111111111111111111111111111111111111112"

	result := txFixture(t, keys, false,
		[]tokenBalance{
			{accountIndex: 1, mint: usdc, owner: keys[0].String(), amount: "100000"},
			{accountIndex: 2, mint: usdc, owner: keys[5].String(), amount: "0"},
			{accountIndex: 3, mint: other, owner: keys[0].String(), amount: "700"},
			{accountIndex: 4, mint: other, owner: keys[5].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: usdc, owner: keys[0].String(), amount: "90000"},
			{accountIndex: 2, mint: usdc, owner: keys[5].String(), amount: "10000"},
			{accountIndex: 3, mint: other, owner: keys[0].String(), amount: "200"},
			{accountIndex: 4, mint: other, owner: keys[5].String(), amount: "500"},
		})

	out, err := ParseTransfers(result)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if len(out.Transfers) != 2 {
		t.Fatalf("got %d transfers, want 2", len(out.Transfers))
	}

	byMint := map[string]x402.TransferRecord{}
	for _, tr := range out.Transfers {
		byMint[tr.Mint] = tr
	}
	if tr := byMint[usdc]; tr.Amount != 10000 {
		t.Errorf("usdc transfer amount = %d, want 10000", tr.Amount)
	}
	if tr := byMint[other]; tr.Amount != 500 {
		t.Errorf("other transfer amount = %d, want 500", tr.Amount)
	}
}

func TestParseTransfers_PairingTolerance(t *testing.T) {
	keys := testKeys(3)
	mint := x402.SolanaDevnet.USDCMint

	// Debit exceeds the credit by exactly the tolerance; the pair still forms
	// and the credited amount is reported.
	result := txFixture(t, keys, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "20100"},
			{accountIndex: 2, mint: mint, owner: keys[0].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "0"},
			{accountIndex: 2, mint: mint, owner: keys[0].String(), amount: "20000"},
		})

	out, err := ParseTransfers(result)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if len(out.Transfers) != 1 {
		t.Fatalf("got %d transfers, want 1", len(out.Transfers))
	}
	if out.Transfers[0].Amount != 20000 {
		t.Errorf("Amount = %d, want the credited 20000", out.Transfers[0].Amount)
	}
}

func TestParseTransfers_BeyondToleranceDoesNotPair(t *testing.T) {
	keys := testKeys(3)
	mint := x402.SolanaDevnet.USDCMint

	result := txFixture(t, keys, false,
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "30000"},
			{accountIndex: 2, mint: mint, owner: keys[0].String(), amount: "0"},
		},
		[]tokenBalance{
			{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "0"},
			{accountIndex: 2, mint: mint, owner: keys[0].String(), amount: "20000"},
		})

	out, err := ParseTransfers(result)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if len(out.Transfers) != 0 {
		t.Errorf("got %d transfers, want 0 (asymmetry beyond tolerance)", len(out.Transfers))
	}
}

func TestParseTransfers_NotFound(t *testing.T) {
	out, err := ParseTransfers(nil)
	if err != nil {
		t.Fatalf("ParseTransfers(nil) error = %v", err)
	}
	if out.Status != ParseTxNotFound {
		t.Errorf("Status = %v, want ParseTxNotFound", out.Status)
	}
}

func TestParseTransfers_FailedTransaction(t *testing.T) {
	keys := testKeys(3)
	mint := x402.SolanaDevnet.USDCMint

	result := txFixture(t, keys, true,
		[]tokenBalance{{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "10000"}},
		[]tokenBalance{{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "10000"}})

	out, err := ParseTransfers(result)
	if err != nil {
		t.Fatalf("ParseTransfers() error = %v", err)
	}
	if out.Status != ParseTxFailed {
		t.Errorf("Status = %v, want ParseTxFailed", out.Status)
	}
	if len(out.Transfers) != 0 {
		t.Errorf("failed transaction should yield no transfers")
	}
}

func TestParseTransfers_UnparseableAmount(t *testing.T) {
	keys := testKeys(3)
	mint := x402.SolanaDevnet.USDCMint

	result := txFixture(t, keys, false,
		[]tokenBalance{{accountIndex: 1, mint: mint, owner: keys[0].String(), amount: "abc"}},
		nil)

	_, err := ParseTransfers(result)
	if err == nil {
		t.Fatal("expected error for unparseable token amount")
	}
	if kind := x402.KindOf(err); kind != x402.KindParseError {
		t.Errorf("kind = %q, want ParseError", kind)
	}
}

func TestParseTransfers_NoMeta(t *testing.T) {
	_, err := ParseTransfers(&rpc.GetTransactionResult{})
	if err == nil {
		t.Fatal("expected error for missing meta")
	}
	if kind := x402.KindOf(err); kind != x402.KindParseError {
		t.Errorf("kind = %q, want ParseError", kind)
	}
}
