package rest

import (
	"context"
	"encoding/json"
	"fmt"

	"bitget-connector/pkg/apierr"
	"bitget-connector/pkg/interfaces"
	"bitget-connector/pkg/schema"
)

const pathSpotAssets = "/api/v2/spot/account/assets"

// GetAccountAssets fetches spot balances. Requires API keys; coin narrows the
// result to one asset when non-empty.
func (c *Client) GetAccountAssets(ctx context.Context, coin string) ([]schema.AccountAssetData, error) {
	if !c.creds.HasAPIKeys() {
		return nil, fmt.Errorf("rest: account assets require api credentials")
	}
	var query []interfaces.Param
	if coin != "" {
		query = []interfaces.Param{{Key: "coin", Value: coin}}
	}
	data, err := c.Call(ctx, "GET", pathSpotAssets, query, nil)
	if err != nil {
		return nil, err
	}
	var assets []schema.AccountAssetData
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, &apierr.ProtocolError{Reason: "account assets payload", Err: err}
	}
	return assets, nil
}
