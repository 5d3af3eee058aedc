package currency

import (
	"fmt"
	"math/big"
)

// ToUnits 将十进制金额转换为代币最小单位（按币种精度）。
// 金额为负时返回错误，调用方不应把负数送到链上。
func ToUnits(amount float64, decimals uint8) (*big.Int, error) {
	if amount < 0 {
		return nil, fmt.Errorf("金额不能为负数: %v", amount)
	}
	scaled := new(big.Float).SetPrec(256).SetFloat64(amount)
	scaled.Mul(scaled, pow10(decimals))
	units, _ := scaled.Int(nil)
	return units, nil
}

// FromUnits 将最小单位还原为十进制金额，仅用于展示。
func FromUnits(units *big.Int, decimals uint8) float64 {
	if units == nil {
		return 0
	}
	value := new(big.Float).SetPrec(256).SetInt(units)
	value.Quo(value, pow10(decimals))
	result, _ := value.Float64()
	return result
}

func pow10(decimals uint8) *big.Float {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Float).SetPrec(256).SetInt(exp)
}
