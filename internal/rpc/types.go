package rpc

import (
	"encoding/json"
)

import (
	solrpc "github.com/gagliardetto/solana-go/rpc"
)

// Method is one of the JSON-RPC methods the gateway is allowed to call.
type Method string

const (
	MethodGetSignaturesForAddress Method = "getSignaturesForAddress"
	MethodGetAssetsByOwner        Method = "getAssetsByOwner"
)

const (
	jsonRPCVersion = "2.0"
	requestID      = "1"
)

// Request is a JSON-RPC 2.0 request; one is built per call.
type Request struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  Method `json:"method"`
	Params  any    `json:"params"`
}

// RPCError is the error member of a JSON-RPC envelope.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the generic JSON-RPC envelope.
type Response[T any] struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  T         `json:"result"`
	Error   *RPCError `json:"error,omitempty"`
}

// SignatureOptions is the config object of getSignaturesForAddress.
// Only the newest page is read; the oldest entry of that page counts as the first signature.
type SignatureOptions struct {
	Commitment solrpc.CommitmentType `json:"commitment,omitempty"`
}

// SignatureInfo is one entry of a getSignaturesForAddress result.
type SignatureInfo struct {
	Signature          string  `json:"signature"`
	Slot               uint64  `json:"slot"`
	Err                any     `json:"err"`
	Memo               *string `json:"memo"`
	BlockTime          *int64  `json:"blockTime"`
	ConfirmationStatus string  `json:"confirmationStatus"`
}

type assetsSortBy struct {
	SortBy        string `json:"sortBy"`
	SortDirection string `json:"sortDirection"`
}

type assetsOptions struct {
	ShowUnverifiedCollections bool `json:"showUnverifiedCollections"`
	ShowCollectionMetadata    bool `json:"showCollectionMetadata"`
	ShowGrandTotal            bool `json:"showGrandTotal"`
	ShowFungible              bool `json:"showFungible"`
	ShowNativeBalance         bool `json:"showNativeBalance"`
	ShowInscription           bool `json:"showInscription"`
	ShowZeroBalance           bool `json:"showZeroBalance"`
}

// OwnerAssetsParams is the params object of getAssetsByOwner.
type OwnerAssetsParams struct {
	OwnerAddress string        `json:"ownerAddress"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	SortBy       assetsSortBy  `json:"sortBy"`
	Options      assetsOptions `json:"options"`
}

func newOwnerAssetsParams(owner string) OwnerAssetsParams {
	return OwnerAssetsParams{
		OwnerAddress: owner,
		Page:         1,
		Limit:        1,
		SortBy:       assetsSortBy{SortBy: "created", SortDirection: "desc"},
		Options: assetsOptions{
			ShowUnverifiedCollections: true,
			ShowCollectionMetadata:    true,
			ShowGrandTotal:            true,
			ShowFungible:              true,
			ShowNativeBalance:         true,
			ShowInscription:           true,
			ShowZeroBalance:           true,
		},
	}
}

// AssetsResult is the result of getAssetsByOwner. Only Total and len(Items) are consumed.
type AssetsResult struct {
	LastIndexedSlot uint64      `json:"last_indexed_slot"`
	Total           int         `json:"total"`
	Limit           int         `json:"limit"`
	Page            int         `json:"page"`
	Items           []AssetItem `json:"items"`
}

// AssetItem keeps the identifying fields of an asset; the rest stays raw.
type AssetItem struct {
	Interface string          `json:"interface"`
	ID        string          `json:"id"`
	Content   json.RawMessage `json:"content,omitempty"`
	Mutable   bool            `json:"mutable"`
	Burnt     bool            `json:"burnt"`
}
