package rpcshim

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	erc20DecimalsMethod = mustMethod("decimals", nil, []string{"uint8"})
	erc20SymbolMethod   = mustMethod("symbol", nil, []string{"string"})
)

func mustMethod(name string, in []string, out []string) abi.Method {
	inArgs := make(abi.Arguments, len(in))
	for i, t := range in {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		inArgs[i] = abi.Argument{Type: typ}
	}
	outArgs := make(abi.Arguments, len(out))
	for i, t := range out {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		outArgs[i] = abi.Argument{Type: typ}
	}
	return abi.NewMethod(name, name, abi.Function, "view", false, false, inArgs, outArgs)
}

// ERC20Decimals calls the token's decimals() view function at the given
// block, for internal/tokenmeta's metadata-backfill resolution.
func (c *Client) ERC20Decimals(ctx context.Context, token common.Address, block uint64) (uint8, error) {
	out, err := c.callView(ctx, token, erc20DecimalsMethod, block)
	if err != nil {
		return 0, err
	}
	values, err := erc20DecimalsMethod.Outputs.Unpack(out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("rpcshim: unpacking decimals() for %s: %w", token.Hex(), err)
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("rpcshim: decimals() for %s returned unexpected type %T", token.Hex(), values[0])
	}
	return d, nil
}

// ERC20Symbol calls the token's symbol() view function.
func (c *Client) ERC20Symbol(ctx context.Context, token common.Address, block uint64) (string, error) {
	out, err := c.callView(ctx, token, erc20SymbolMethod, block)
	if err != nil {
		return "", err
	}
	values, err := erc20SymbolMethod.Outputs.Unpack(out)
	if err != nil || len(values) != 1 {
		return "", fmt.Errorf("rpcshim: unpacking symbol() for %s: %w", token.Hex(), err)
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("rpcshim: symbol() for %s returned unexpected type %T", token.Hex(), values[0])
	}
	return s, nil
}

func (c *Client) callView(ctx context.Context, to common.Address, method abi.Method, block uint64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{To: &to, Data: method.ID}
	blockNum := new(big.Int).SetUint64(block)
	return c.withRetryBytes(ctx, func(ctx context.Context) ([]byte, error) {
		return c.eth.CallContract(ctx, msg, blockNum)
	})
}
