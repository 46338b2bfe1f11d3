package model

// PairMeta captures immutable pair metadata.
type PairMeta struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}
