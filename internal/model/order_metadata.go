package model

import "math/big"

// OrderMetadata is the structured payload carried opaquely inside Intent.Metadata.
type OrderMetadata struct {
	Symbol     string   `json:"symbol"`
	OptionType string   `json:"option_type"`
	Quantity   *big.Int `json:"quantity"`
	Price      *big.Int `json:"price"`
	Expiry     *big.Int `json:"expiry"`
}
