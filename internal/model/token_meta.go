package model

// TokenMeta captures ERC20 metadata of a pair asset.
type TokenMeta struct {
	Address       string `json:"address"`
	Decimals      uint8  `json:"decimals"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	FeeOnTransfer bool   `json:"fee_on_transfer,omitempty"`
}
