package models

import (
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/fixedpoint"
)

// TokenBalance is one entry of a bounded token balance list.
type TokenBalance struct {
	Asset  domain.AssetID `json:"asset"`
	Amount uint64         `json:"amount"`
}

// Balances holds a native amount plus an ordered, capacity-checked list of token
// amounts keyed by asset id. New assets are appended; known assets are updated in
// place, so iteration order is the order assets were first seen.
type Balances struct {
	Native uint64         `json:"native"`
	Tokens []TokenBalance `json:"tokens"`
}

// Of returns the balance held for asset (zero when absent).
func (b Balances) Of(asset domain.AssetID) uint64 {
	if asset.IsNative() {
		return b.Native
	}
	if i := b.index(asset); i >= 0 {
		return b.Tokens[i].Amount
	}
	return 0
}

// Has reports whether a token entry exists for asset. Native always exists.
func (b Balances) Has(asset domain.AssetID) bool {
	return asset.IsNative() || b.index(asset) >= 0
}

// Credit adds amount to asset. A new token entry beyond capacity is
// CodeCapacityExceeded; an overflowing sum is CodeOverflow.
func (b *Balances) Credit(asset domain.AssetID, amount uint64, capacity int) error {
	if asset.IsNative() {
		next, err := fixedpoint.CheckedAdd(b.Native, amount)
		if err != nil {
			return err
		}
		b.Native = next
		return nil
	}
	if i := b.index(asset); i >= 0 {
		next, err := fixedpoint.CheckedAdd(b.Tokens[i].Amount, amount)
		if err != nil {
			return err
		}
		b.Tokens[i].Amount = next
		return nil
	}
	if len(b.Tokens) >= capacity {
		return dErrors.New(dErrors.CodeCapacityExceeded, "token asset capacity reached")
	}
	b.Tokens = append(b.Tokens, TokenBalance{Asset: asset, Amount: amount})
	return nil
}

// Debit subtracts amount from asset. Debiting an absent token or more than the
// held amount is CodeUnderflow.
func (b *Balances) Debit(asset domain.AssetID, amount uint64) error {
	if asset.IsNative() {
		next, err := fixedpoint.CheckedSub(b.Native, amount)
		if err != nil {
			return err
		}
		b.Native = next
		return nil
	}
	i := b.index(asset)
	if i < 0 {
		if amount == 0 {
			return nil
		}
		return dErrors.New(dErrors.CodeUnderflow, "no balance held for asset")
	}
	next, err := fixedpoint.CheckedSub(b.Tokens[i].Amount, amount)
	if err != nil {
		return err
	}
	b.Tokens[i].Amount = next
	return nil
}

// Total sums native and every token amount with overflow checking.
func (b Balances) Total() (uint64, error) {
	total := b.Native
	for _, t := range b.Tokens {
		next, err := fixedpoint.CheckedAdd(total, t.Amount)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// Assets lists native followed by every token asset in insertion order.
func (b Balances) Assets() []domain.AssetID {
	out := make([]domain.AssetID, 0, len(b.Tokens)+1)
	out = append(out, domain.NativeAsset)
	for _, t := range b.Tokens {
		out = append(out, t.Asset)
	}
	return out
}

// Clone returns a deep copy.
func (b Balances) Clone() Balances {
	out := Balances{Native: b.Native}
	if b.Tokens != nil {
		out.Tokens = append(make([]TokenBalance, 0, len(b.Tokens)), b.Tokens...)
	}
	return out
}

func (b Balances) index(asset domain.AssetID) int {
	for i := range b.Tokens {
		if b.Tokens[i].Asset == asset {
			return i
		}
	}
	return -1
}
