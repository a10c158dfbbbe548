package marketplace

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Commission is buyer_profit * percentage / 100 rounded half away from zero to cents
func Commission(buyerProfit, percentage decimal.Decimal) decimal.Decimal {
	return buyerProfit.Mul(percentage).Div(hundred).Round(2)
}

// SellerProfit is what the seller keeps of the customer total
func SellerProfit(customerTotal, buyerProfit decimal.Decimal) decimal.Decimal {
	return customerTotal.Sub(buyerProfit)
}
