package ledger

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/paylith/x402-solana"
)

// PairingTolerance is the maximum credit/debit asymmetry, in base units,
// accepted when pairing balance deltas into transfers. USDC has no transfer
// fee, so pairs normally match exactly.
const PairingTolerance = 100

// ParseStatus classifies a parse outcome.
type ParseStatus int

const (
	// ParseOK means the transaction was decoded; Transfers may still be empty.
	ParseOK ParseStatus = iota

	// ParseTxNotFound means the RPC had no record of the signature.
	ParseTxNotFound

	// ParseTxFailed means the transaction exists but reverted on chain.
	ParseTxFailed
)

// ParseOutcome is the parser's result: the extracted token transfers plus
// the transaction's block time and slot.
type ParseOutcome struct {
	Status    ParseStatus
	Transfers []x402.TransferRecord
	BlockTime int64
	Slot      uint64
}

// balanceDelta is one signed token-balance movement on a single account.
type balanceDelta struct {
	accountIndex uint16
	account      string
	owner        string
	mint         string
	amount       uint64
	paired       bool
}

// ParseTransfers extracts stablecoin transfers from a raw transaction record
// using the balance-delta method: it diffs pre/post token balances instead of
// decoding instructions, which keeps it robust to inner instructions, CPI
// wrapping and instruction-set evolution.
func ParseTransfers(result *rpc.GetTransactionResult) (ParseOutcome, error) {
	if result == nil {
		return ParseOutcome{Status: ParseTxNotFound}, nil
	}
	if result.Meta == nil {
		return ParseOutcome{}, x402.NewPaymentError(x402.KindParseError, "transaction has no meta", nil)
	}

	out := ParseOutcome{Status: ParseOK, Slot: result.Slot}
	if result.BlockTime != nil {
		out.BlockTime = result.BlockTime.Time().Unix()
	}

	if result.Meta.Err != nil {
		out.Status = ParseTxFailed
		return out, nil
	}

	if result.Transaction == nil {
		return ParseOutcome{}, x402.NewPaymentError(x402.KindParseError, "transaction envelope missing", nil)
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return ParseOutcome{}, x402.NewPaymentError(x402.KindParseError, "failed to decode transaction", err)
	}
	// Accounts introduced by address-table lookups follow the static keys.
	keys := make([]solana.PublicKey, 0,
		len(tx.Message.AccountKeys)+len(result.Meta.LoadedAddresses.Writable)+len(result.Meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, result.Meta.LoadedAddresses.Writable...)
	keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)

	pre, err := balancesByIndex(result.Meta.PreTokenBalances)
	if err != nil {
		return ParseOutcome{}, err
	}
	post, err := balancesByIndex(result.Meta.PostTokenBalances)
	if err != nil {
		return ParseOutcome{}, err
	}

	var credits, debits []balanceDelta
	for index, postBal := range post {
		preAmount := uint64(0)
		if preBal, ok := pre[index]; ok {
			preAmount = preBal.amount
		}
		if postBal.amount > preAmount {
			delta := postBal
			delta.amount = postBal.amount - preAmount
			credits = append(credits, delta)
		}
	}
	for index, preBal := range pre {
		postAmount := uint64(0)
		if postBal, ok := post[index]; ok {
			postAmount = postBal.amount
		}
		if preBal.amount > postAmount {
			delta := preBal
			delta.amount = preBal.amount - postAmount
			debits = append(debits, delta)
		}
	}

	// Greedy pairing by mint with a small tolerance for fee-bearing assets.
	for ci := range credits {
		credit := &credits[ci]
		for di := range debits {
			debit := &debits[di]
			if debit.paired || debit.mint != credit.mint {
				continue
			}
			if !withinTolerance(credit.amount, debit.amount) {
				continue
			}
			debit.paired = true
			credit.paired = true
			out.Transfers = append(out.Transfers, x402.TransferRecord{
				Source:      accountAt(keys, debit.accountIndex),
				Destination: accountAt(keys, credit.accountIndex),
				Authority:   debit.owner,
				Amount:      credit.amount,
				Mint:        credit.mint,
			})
			break
		}
	}

	return out, nil
}

func balancesByIndex(balances []rpc.TokenBalance) (map[uint16]balanceDelta, error) {
	out := make(map[uint16]balanceDelta, len(balances))
	for _, bal := range balances {
		if bal.UiTokenAmount == nil {
			return nil, x402.NewPaymentError(x402.KindParseError, "token balance missing amount", nil)
		}
		amount, err := strconv.ParseUint(bal.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			return nil, x402.NewPaymentError(x402.KindParseError,
				fmt.Sprintf("unparseable token amount %q", bal.UiTokenAmount.Amount), err)
		}
		owner := ""
		if bal.Owner != nil {
			owner = bal.Owner.String()
		}
		out[bal.AccountIndex] = balanceDelta{
			accountIndex: bal.AccountIndex,
			owner:        owner,
			mint:         bal.Mint.String(),
			amount:       amount,
		}
	}
	return out, nil
}

func accountAt(keys []solana.PublicKey, index uint16) string {
	if int(index) < len(keys) {
		return keys[index].String()
	}
	return ""
}

func withinTolerance(a, b uint64) bool {
	if a > b {
		return a-b <= PairingTolerance
	}
	return b-a <= PairingTolerance
}
