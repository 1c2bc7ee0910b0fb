package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// Staking contract
	SelectorDeposit   = selector("deposit(uint256)")
	SelectorWithdraw  = selector("withdraw(uint256)")
	SelectorClaim     = selector("claim()")
	SelectorReinvest  = selector("reinvest()")
	SelectorBalanceOf = selector("balanceOf(address)")
	SelectorEarned    = selector("earned(address)")

	// Launch list contract
	SelectorIsOnLaunchList   = selector("isAddressOnLaunchList(address)")
	SelectorAddressUsdcSpent = selector("addressUsdcSpent(address)")
)

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func encodeUint(sel []byte, v *big.Int) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], sel)
	v.FillBytes(data[4:36])
	return data
}

func encodeAddress(sel []byte, a common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], sel)
	copy(data[4+12:36], a.Bytes())
	return data
}

// EncodeDeposit encodes deposit(uint256).
func EncodeDeposit(amount *big.Int) []byte { return encodeUint(SelectorDeposit, amount) }

// EncodeWithdraw encodes withdraw(uint256).
func EncodeWithdraw(amount *big.Int) []byte { return encodeUint(SelectorWithdraw, amount) }

// EncodeClaim encodes claim().
func EncodeClaim() []byte { return append([]byte{}, SelectorClaim...) }

// EncodeReinvest encodes reinvest().
func EncodeReinvest() []byte { return append([]byte{}, SelectorReinvest...) }

// EncodeBalanceOf encodes balanceOf(address).
func EncodeBalanceOf(account common.Address) []byte {
	return encodeAddress(SelectorBalanceOf, account)
}

// EncodeEarned encodes earned(address).
func EncodeEarned(account common.Address) []byte { return encodeAddress(SelectorEarned, account) }

// EncodeIsOnLaunchList encodes isAddressOnLaunchList(address).
func EncodeIsOnLaunchList(account common.Address) []byte {
	return encodeAddress(SelectorIsOnLaunchList, account)
}

// EncodeAddressUsdcSpent encodes addressUsdcSpent(address).
func EncodeAddressUsdcSpent(account common.Address) []byte {
	return encodeAddress(SelectorAddressUsdcSpent, account)
}
