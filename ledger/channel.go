package ledger

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/paylith/x402-solana"
)

// ChannelAccountSize is the fixed size of an on-chain channel account.
const ChannelAccountSize = 170

// Fixed byte offsets of the channel account layout. All integers are
// little-endian. The decoder reads positionally; there is no reflective
// deserialization on purpose.
const (
	channelIDOffset     = 8
	clientOffset        = 40
	serverOffset        = 72
	clientDepositOffset = 104
	serverClaimedOffset = 112
	nonceOffset         = 120
	expiryOffset        = 128
	statusOffset        = 136
	createdAtOffset     = 137
	lastUpdateOffset    = 145
	debtOwedOffset      = 153
	creditLimitOffset   = 161
	bumpOffset          = 169
)

// ChannelStatus is the lifecycle state of a settlement channel. Transitions
// are owned by the on-chain program; this module only observes.
type ChannelStatus uint8

const (
	ChannelOpen ChannelStatus = iota
	ChannelClosed
	ChannelDisputed
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	case ChannelDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// ChannelRecord is the on-chain state of a settlement channel as read from
// its program-derived account.
type ChannelRecord struct {
	// Address is the program-derived account the record was read from.
	Address solana.PublicKey

	// ChannelID is the channel identifier stored in the account.
	ChannelID solana.PublicKey

	// Client is the paying party; claims must be signed by this key.
	Client solana.PublicKey

	// Server is the receiving party authorized to submit claims.
	Server solana.PublicKey

	// ClientDeposit is the prepaid balance in base units.
	ClientDeposit uint64

	// ServerClaimed is the cumulative amount already claimed in base units.
	ServerClaimed uint64

	// Nonce is the highest claim nonce the channel has settled.
	Nonce uint64

	// Expiry is the channel expiry in unix seconds; 0 means none.
	Expiry int64

	// Status is the channel lifecycle state.
	Status ChannelStatus

	// CreatedAt and LastUpdate are unix-second bookkeeping timestamps.
	CreatedAt  int64
	LastUpdate int64

	// DebtOwed is the amount claimed beyond the deposit, in base units.
	DebtOwed uint64

	// CreditLimit is how far claims may exceed the deposit, in base units.
	CreditLimit uint64

	// Bump is the PDA bump seed.
	Bump uint8
}

// DecodeChannelAccount decodes a channel record from raw account data.
// Returns a ChannelNotFound payment error when the data is shorter than the
// fixed layout.
func DecodeChannelAccount(address solana.PublicKey, data []byte) (*ChannelRecord, error) {
	if len(data) < ChannelAccountSize {
		return nil, x402.NewPaymentError(x402.KindChannelNotFound,
			"account data shorter than channel layout", nil)
	}

	rec := &ChannelRecord{
		Address:       address,
		ClientDeposit: binary.LittleEndian.Uint64(data[clientDepositOffset:]),
		ServerClaimed: binary.LittleEndian.Uint64(data[serverClaimedOffset:]),
		Nonce:         binary.LittleEndian.Uint64(data[nonceOffset:]),
		Expiry:        int64(binary.LittleEndian.Uint64(data[expiryOffset:])),
		Status:        ChannelStatus(data[statusOffset]),
		CreatedAt:     int64(binary.LittleEndian.Uint64(data[createdAtOffset:])),
		LastUpdate:    int64(binary.LittleEndian.Uint64(data[lastUpdateOffset:])),
		DebtOwed:      binary.LittleEndian.Uint64(data[debtOwedOffset:]),
		CreditLimit:   binary.LittleEndian.Uint64(data[creditLimitOffset:]),
		Bump:          data[bumpOffset],
	}
	copy(rec.ChannelID[:], data[channelIDOffset:channelIDOffset+32])
	copy(rec.Client[:], data[clientOffset:clientOffset+32])
	copy(rec.Server[:], data[serverOffset:serverOffset+32])
	return rec, nil
}

// EncodeChannelAccount is the inverse of DecodeChannelAccount. It exists for
// tests and tooling; production code only ever reads channel accounts.
func EncodeChannelAccount(rec *ChannelRecord) []byte {
	data := make([]byte, ChannelAccountSize)
	copy(data[channelIDOffset:], rec.ChannelID[:])
	copy(data[clientOffset:], rec.Client[:])
	copy(data[serverOffset:], rec.Server[:])
	binary.LittleEndian.PutUint64(data[clientDepositOffset:], rec.ClientDeposit)
	binary.LittleEndian.PutUint64(data[serverClaimedOffset:], rec.ServerClaimed)
	binary.LittleEndian.PutUint64(data[nonceOffset:], rec.Nonce)
	binary.LittleEndian.PutUint64(data[expiryOffset:], uint64(rec.Expiry))
	data[statusOffset] = byte(rec.Status)
	binary.LittleEndian.PutUint64(data[createdAtOffset:], uint64(rec.CreatedAt))
	binary.LittleEndian.PutUint64(data[lastUpdateOffset:], uint64(rec.LastUpdate))
	binary.LittleEndian.PutUint64(data[debtOwedOffset:], rec.DebtOwed)
	binary.LittleEndian.PutUint64(data[creditLimitOffset:], rec.CreditLimit)
	data[bumpOffset] = rec.Bump
	return data
}

// claimDomain is the 21-byte domain separator of the canonical claim message.
const claimDomain = "x402:channel-claim-v1"

// ClaimMessageSize is the fixed size of the canonical claim message.
const ClaimMessageSize = len(claimDomain) + 32 + 32 + 8 + 8 + 8

// ClaimMessage builds the canonical 109-byte message a channel claim signs:
// domain, channel ID, server key, then amount, nonce and expiry as u64 LE.
func ClaimMessage(channelID, server solana.PublicKey, amount, nonce, expiry uint64) []byte {
	msg := make([]byte, 0, ClaimMessageSize)
	msg = append(msg, claimDomain...)
	msg = append(msg, channelID[:]...)
	msg = append(msg, server[:]...)
	msg = binary.LittleEndian.AppendUint64(msg, amount)
	msg = binary.LittleEndian.AppendUint64(msg, nonce)
	msg = binary.LittleEndian.AppendUint64(msg, expiry)
	return msg
}
