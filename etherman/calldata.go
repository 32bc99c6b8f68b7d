package etherman

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var erc20ABI = `[
	{
		"constant": false,
		"inputs": [
			{
				"name": "spender",
				"type": "address"
			},
			{
				"name": "amount",
				"type": "uint256"
			}
		],
		"name": "approve",
		"outputs": [
			{
				"name": "",
				"type": "bool"
			}
		],
		"payable": false,
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{
				"name": "recipient",
				"type": "address"
			},
			{
				"name": "amount",
				"type": "uint256"
			}
		],
		"name": "transfer",
		"outputs": [
			{
				"name": "",
				"type": "bool"
			}
		],
		"payable": false,
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{
				"name": "account",
				"type": "address"
			}
		],
		"name": "balanceOf",
		"outputs": [
			{
				"name": "",
				"type": "uint256"
			}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

var parsedERC20 abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	parsedERC20 = parsed
}

// ApproveCall builds the ERC-20 approve(spender, amount) call on token.
func ApproveCall(token, spender common.Address, amount *big.Int) (Call, error) {
	data, err := parsedERC20.Pack("approve", spender, amount)
	if err != nil {
		return Call{}, err
	}
	return Call{To: token, Data: data, Value: big.NewInt(0)}, nil
}

// TransferCall builds the ERC-20 transfer(recipient, amount) call on token.
func TransferCall(token, recipient common.Address, amount *big.Int) (Call, error) {
	data, err := parsedERC20.Pack("transfer", recipient, amount)
	if err != nil {
		return Call{}, err
	}
	return Call{To: token, Data: data, Value: big.NewInt(0)}, nil
}

// BalanceOfCallData packs the ERC-20 balanceOf(account) calldata.
func BalanceOfCallData(account common.Address) ([]byte, error) {
	return parsedERC20.Pack("balanceOf", account)
}

// UnpackBalanceOf decodes a balanceOf return value.
func UnpackBalanceOf(data []byte) (*big.Int, error) {
	values, err := parsedERC20.Unpack("balanceOf", data)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}

// NativeTransferCall builds a plain value transfer to recipient.
func NativeTransferCall(recipient common.Address, amount *big.Int) Call {
	return Call{To: recipient, Data: nil, Value: new(big.Int).Set(amount)}
}
