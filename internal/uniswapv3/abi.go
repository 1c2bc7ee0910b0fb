package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Function selectors (first 4 bytes of keccak256(signature))
var (
	// ERC20 selectors
	SelectorApprove   = selector("approve(address,uint256)")
	SelectorBalanceOf = selector("balanceOf(address)")
	SelectorAllowance = selector("allowance(address,address)")

	// UniswapV3Pool selectors
	SelectorSlot0     = selector("slot0()")
	SelectorLiquidity = selector("liquidity()")
	SelectorToken0    = selector("token0()")
	SelectorToken1    = selector("token1()")
	SelectorFee       = selector("fee()")

	// Quoter selectors
	SelectorQuoteExactInputSingle = selector("quoteExactInputSingle(address,address,uint24,uint256,uint160)")

	// SwapRouter selectors
	SelectorExactInputSingle = selector("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))")
	SelectorMulticall        = selector("multicall(bytes[])")
	SelectorUnwrapWETH9      = selector("unwrapWETH9(uint256,address)")
	SelectorRefundETH        = selector("refundETH()")

	// NonfungiblePositionManager selectors
	SelectorMintPosition = selector("mint((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,address,uint256))")
)

// ErrShortReturnData is returned when a call result is smaller than the decoded layout.
var ErrShortReturnData = errors.New("return data too short")

var bytesArrayArgs = mustArguments("bytes[]")

func mustArguments(typ string) abi.Arguments {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

// selector computes the 4-byte function selector from signature.
func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

// EncodeApprove encodes ERC20.approve(address,uint256) call.
func EncodeApprove(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorApprove)
	copy(data[4+12:36], spender.Bytes())
	amount.FillBytes(data[36:68])
	return data
}

// EncodeBalanceOf encodes ERC20.balanceOf(address) call.
func EncodeBalanceOf(account common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[:4], SelectorBalanceOf)
	copy(data[4+12:36], account.Bytes())
	return data
}

// EncodeAllowance encodes ERC20.allowance(address,address) call.
func EncodeAllowance(owner, spender common.Address) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorAllowance)
	copy(data[4+12:36], owner.Bytes())
	copy(data[36+12:68], spender.Bytes())
	return data
}

// EncodeQuoteExactInputSingle encodes Quoter.quoteExactInputSingle(...) with no price limit.
func EncodeQuoteExactInputSingle(tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) []byte {
	data := make([]byte, 4+5*32)
	copy(data[:4], SelectorQuoteExactInputSingle)
	copy(data[4+12:36], tokenIn.Bytes())
	copy(data[36+12:68], tokenOut.Bytes())
	big.NewInt(int64(fee)).FillBytes(data[68:100])
	amountIn.FillBytes(data[100:132])
	// sqrtPriceLimitX96 = 0
	return data
}

// EncodeExactInputSingle encodes SwapRouter.exactInputSingle(...) call.
// The struct is: (tokenIn, tokenOut, fee, recipient, deadline, amountIn, amountOutMinimum, sqrtPriceLimitX96)
// The struct has all static types, so no offset pointer is needed - fields are encoded directly.
func EncodeExactInputSingle(params ExactInputSingleParams) []byte {
	data := make([]byte, 4+8*32)
	copy(data[:4], SelectorExactInputSingle)

	offset := 4
	copy(data[offset+12:offset+32], params.TokenIn.Bytes())
	offset += 32
	copy(data[offset+12:offset+32], params.TokenOut.Bytes())
	offset += 32
	big.NewInt(int64(params.Fee)).FillBytes(data[offset : offset+32])
	offset += 32
	copy(data[offset+12:offset+32], params.Recipient.Bytes())
	offset += 32
	params.Deadline.FillBytes(data[offset : offset+32])
	offset += 32
	params.AmountIn.FillBytes(data[offset : offset+32])
	offset += 32
	params.AmountOutMinimum.FillBytes(data[offset : offset+32])
	offset += 32
	if params.SqrtPriceLimitX96 != nil {
		params.SqrtPriceLimitX96.FillBytes(data[offset : offset+32])
	}

	return data
}

// EncodeUnwrapWETH9 encodes SwapRouter.unwrapWETH9(uint256,address) call.
func EncodeUnwrapWETH9(amountMinimum *big.Int, recipient common.Address) []byte {
	data := make([]byte, 4+32+32)
	copy(data[:4], SelectorUnwrapWETH9)
	amountMinimum.FillBytes(data[4:36])
	copy(data[36+12:68], recipient.Bytes())
	return data
}

// EncodeRefundETH encodes refundETH(), returning unspent native value to the sender.
func EncodeRefundETH() []byte {
	return append([]byte{}, SelectorRefundETH...)
}

// EncodeMulticall encodes multicall(bytes[]) wrapping the given calls.
func EncodeMulticall(calls ...[]byte) ([]byte, error) {
	packed, err := bytesArrayArgs.Pack(calls)
	if err != nil {
		return nil, fmt.Errorf("pack multicall: %w", err)
	}
	return append(append([]byte{}, SelectorMulticall...), packed...), nil
}

// DecodeMulticall returns the inner calls of a multicall(bytes[]) payload.
func DecodeMulticall(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, ErrShortReturnData
	}
	values, err := bytesArrayArgs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack multicall: %w", err)
	}
	calls, ok := values[0].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected multicall payload type %T", values[0])
	}
	return calls, nil
}

// MintParams holds parameters for NFTPositionManager.mint
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int32
	TickUpper      int32
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// EncodeMintPosition encodes NonfungiblePositionManager.mint(...) call.
// The struct has all static types, so no offset pointer is needed - fields are encoded directly.
func EncodeMintPosition(params MintParams) []byte {
	data := make([]byte, 4+11*32)
	copy(data[:4], SelectorMintPosition)

	offset := 4
	copy(data[offset+12:offset+32], params.Token0.Bytes())
	offset += 32
	copy(data[offset+12:offset+32], params.Token1.Bytes())
	offset += 32
	big.NewInt(int64(params.Fee)).FillBytes(data[offset : offset+32])
	offset += 32
	putInt24(data[offset:offset+32], params.TickLower)
	offset += 32
	putInt24(data[offset:offset+32], params.TickUpper)
	offset += 32
	params.Amount0Desired.FillBytes(data[offset : offset+32])
	offset += 32
	params.Amount1Desired.FillBytes(data[offset : offset+32])
	offset += 32
	params.Amount0Min.FillBytes(data[offset : offset+32])
	offset += 32
	params.Amount1Min.FillBytes(data[offset : offset+32])
	offset += 32
	copy(data[offset+12:offset+32], params.Recipient.Bytes())
	offset += 32
	params.Deadline.FillBytes(data[offset : offset+32])

	return data
}

// putInt24 writes a signed tick sign-extended to a 256-bit two's complement word.
func putInt24(word []byte, v int32) {
	n := big.NewInt(int64(v))
	if v < 0 {
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	n.FillBytes(word)
}

// DecodeUint256 decodes the first return word as an unsigned integer.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, ErrShortReturnData
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// DecodeAddress decodes the first return word as an address.
func DecodeAddress(data []byte) (common.Address, error) {
	if len(data) < 32 {
		return common.Address{}, ErrShortReturnData
	}
	return common.BytesToAddress(data[12:32]), nil
}

// DecodeBool decodes the first return word as a bool.
func DecodeBool(data []byte) (bool, error) {
	if len(data) < 32 {
		return false, ErrShortReturnData
	}
	return data[31] != 0, nil
}

// DecodeSlot0 decodes sqrtPriceX96 and tick from a slot0() result.
func DecodeSlot0(data []byte) (*big.Int, int32, error) {
	if len(data) < 64 {
		return nil, 0, ErrShortReturnData
	}
	sqrtPriceX96 := new(big.Int).SetBytes(data[:32])
	// int24 tick lives in the low 3 bytes of the second word, sign-extended
	raw := int32(data[61])<<16 | int32(data[62])<<8 | int32(data[63])
	if raw&0x800000 != 0 {
		raw -= 1 << 24
	}
	return sqrtPriceX96, raw, nil
}
