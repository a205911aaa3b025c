package route

import (
	"fmt"
	"math/big"

	"yieldRouter/internal/model"
)

// NoProfitablePathError is returned when no path satisfies the liquidity constraints.
type NoProfitablePathError struct {
	Asset   model.Token
	AssetTo model.Token
	Amount  *big.Int
}

func (e *NoProfitablePathError) Error() string {
	return fmt.Sprintf("no profitable path from %s to %s for amount %s", e.Asset, e.AssetTo, amountString(e.Amount))
}

// InvalidRouteRequestError is returned for requests that cannot describe a trade,
// such as a zero amount or identical source and destination tokens.
type InvalidRouteRequestError struct {
	Reason string
}

func (e *InvalidRouteRequestError) Error() string {
	return "invalid route request: " + e.Reason
}

// TradesNotComparableError signals a comparison between trades of different
// direction or currencies. It indicates a programming error in the caller.
type TradesNotComparableError struct {
	A, B *model.Route
}

func (e *TradesNotComparableError) Error() string {
	return fmt.Sprintf("trades not comparable: %s %s vs %s %s", e.A.Direction, e.A, e.B.Direction, e.B)
}

func amountString(amount *big.Int) string {
	if amount == nil {
		return "<nil>"
	}
	return amount.String()
}
